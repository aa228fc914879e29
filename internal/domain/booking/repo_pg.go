package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const viewCols = `a.id, a.patient_id, a.doctor_id, a.appointment_date, a.appointment_end, a.status, a.appointment_type,
	a.notes, a.created_at, a.updated_at,
	du.full_name, d.title, d.department, d.user_id,
	pu.full_name, p.phone_number, p.user_id`

const viewFrom = ` FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id
	JOIN patients p ON p.id = a.patient_id
	JOIN users pu ON pu.id = p.user_id`

func (r *repoPG) scanView(row pgx.Row) (*AppointmentView, error) {
	var v AppointmentView
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.AppointmentDate, &v.AppointmentEnd, &v.Status, &v.AppointmentType,
		&v.Notes, &v.CreatedAt, &v.UpdatedAt,
		&v.DoctorName, &v.DoctorTitle, &v.Department, &v.DoctorUserID,
		&v.PatientName, &v.PatientPhone, &v.PatientUserID)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_end,
			status, appointment_type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentEnd, a.Status, a.AppointmentType, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	return r.scanView(r.conn(ctx).QueryRow(ctx, `SELECT `+viewCols+viewFrom+` WHERE a.id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (time.Time, bool, error) {
	var updatedAt time.Time
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`, id, from, to).Scan(&updatedAt)
	if db.IsNoRows(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return updatedAt, true, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*AppointmentView, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.DoctorID != uuid.Nil {
		add("a.doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != uuid.Nil {
		add("a.patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + viewCols + viewFrom + where +
		fmt.Sprintf(` ORDER BY a.appointment_date, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*AppointmentView{}
	for rows.Next() {
		v, err := r.scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) BookedSpans(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Span, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_date, appointment_end FROM appointments
		WHERE doctor_id = $1 AND status <> $2
		  AND appointment_date < $4 AND appointment_end > $3
		ORDER BY appointment_date`, doctorID, StatusCanceled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Span
	for rows.Next() {
		var sp availability.Span
		if err := rows.Scan(&sp.Start, &sp.End); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
