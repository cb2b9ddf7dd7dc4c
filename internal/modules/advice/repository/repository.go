package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"sentinel-brain/internal/modules/advice/types"
)

//go:embed sql/insert-advice.sql
var insertAdviceSQL string

//go:embed sql/list-recent-advice.sql
var listRecentAdviceSQL string

//go:embed sql/count-advice.sql
var countAdviceSQL string

// createdAtLayout is fixed width so created_at sorts lexically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

type AdviceRepository interface {
	Insert(ctx context.Context, rec types.AdviceRecord) (int64, error)
	ListRecent(ctx context.Context, plantName string, limit int) ([]types.AdviceRecord, error)
	Count(ctx context.Context, plantName string) (int, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) AdviceRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Insert(ctx context.Context, rec types.AdviceRecord) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var age any
	if rec.PlantAgeDays != nil {
		age = *rec.PlantAgeDays
	}
	alert := 0
	if rec.AlertNeeded {
		alert = 1
	}

	res, err := r.db.ExecContext(ctx, insertAdviceSQL,
		rec.PlantName,
		age,
		rec.MoisturePercentage,
		alert,
		rec.Advice,
		rec.Policy,
		rec.Source,
		createdAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert advice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert advice: last insert id: %w", err)
	}
	return id, nil
}

// ListRecent returns the newest records first. An empty plantName matches
// every plant.
func (r *repositoryImpl) ListRecent(ctx context.Context, plantName string, limit int) ([]types.AdviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, listRecentAdviceSQL, plantName, plantName, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close advice rows", "error", err)
		}
	}()

	out := []types.AdviceRecord{}
	for rows.Next() {
		var (
			rec   types.AdviceRecord
			age   sql.NullInt64
			alert int
			ts    string
		)
		if err := rows.Scan(&rec.ID, &rec.PlantName, &age, &rec.MoisturePercentage, &alert, &rec.Advice, &rec.Policy, &rec.Source, &ts); err != nil {
			return nil, err
		}
		if age.Valid {
			days := int(age.Int64)
			rec.PlantAgeDays = &days
		}
		rec.AlertNeeded = alert == 1
		rec.CreatedAt, err = parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) Count(ctx context.Context, plantName string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countAdviceSQL, plantName, plantName).Scan(&n)
	return n, err
}

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", ts, err, err2)
		}
	}
	return t, nil
}
