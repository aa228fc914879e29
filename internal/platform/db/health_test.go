package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func runHealth(t *testing.T, pingErr error) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	h := healthHandler(
		func(context.Context) error { return pingErr },
		func() *PoolStats { return &PoolStats{TotalConns: 2, MaxConns: 10} },
		zerolog.Nop(),
	)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := runHealth(t, nil)
	if rec.Code != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("got %d %+v", rec.Code, body)
	}
	if body.Pool == nil || body.Pool.MaxConns != 10 {
		t.Errorf("expected pool stats, got %+v", body.Pool)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := runHealth(t, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	if rec.Code != http.StatusServiceUnavailable || body.Status != "unhealthy" {
		t.Fatalf("got %d %+v", rec.Code, body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("driver error leaked into the response")
	}
}
