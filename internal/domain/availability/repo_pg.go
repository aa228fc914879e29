package availability

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Replace(ctx context.Context, doctorID uuid.UUID, day Weekday, intervals []Interval) (int64, error) {
	var rev int64
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		// Taking the doctor row lock first makes a concurrent replace wait
		// here; its DELETE then runs on a snapshot that includes our rows.
		if err := q.QueryRow(ctx, `
			UPDATE doctors SET timetable_revision = timetable_revision + 1
			WHERE id = $1
			RETURNING timetable_revision`, doctorID).Scan(&rev); err != nil {
			return err
		}
		if _, err := q.Exec(ctx,
			`DELETE FROM schedule_timings WHERE doctor_id = $1 AND weekday = $2`,
			doctorID, int16(day)); err != nil {
			return err
		}
		for _, iv := range intervals {
			if _, err := q.Exec(ctx, `
				INSERT INTO schedule_timings (id, doctor_id, weekday, start_time, end_time)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), doctorID, int16(day), iv.Start.pgTime(), iv.End.pgTime()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rev, nil
}

func (r *repoPG) Read(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]Interval, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT start_time, end_time FROM schedule_timings
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_time`, doctorID, int16(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Interval{}
	for rows.Next() {
		var start, end pgtype.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		items = append(items, Interval{Start: timeOfDayFromPG(start), End: timeOfDayFromPG(end)})
	}
	return items, rows.Err()
}

func (r *repoPG) Revision(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	var rev int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT timetable_revision FROM doctors WHERE id = $1`, doctorID).Scan(&rev)
	return rev, err
}

// ReadAll reads the revision and the intervals in a single statement so both
// come from the same snapshot.
func (r *repoPG) ReadAll(ctx context.Context, doctorID uuid.UUID) (*Timetable, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.timetable_revision, s.weekday, s.start_time, s.end_time
		FROM doctors d
		LEFT JOIN schedule_timings s ON s.doctor_id = d.id
		WHERE d.id = $1
		ORDER BY s.weekday, s.start_time`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tt := newTimetable(doctorID.String())
	found := false
	for rows.Next() {
		var wd pgtype.Int2
		var start, end pgtype.Time
		if err := rows.Scan(&tt.Revision, &wd, &start, &end); err != nil {
			return nil, err
		}
		found = true
		w := Weekday(wd.Int16)
		if !wd.Valid || !w.Valid() {
			continue
		}
		tt.Days[w].Intervals = append(tt.Days[w].Intervals,
			Interval{Start: timeOfDayFromPG(start), End: timeOfDayFromPG(end)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, pgx.ErrNoRows
	}
	return tt, nil
}
