package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sentinel-brain/internal/config"
	"sentinel-brain/internal/db"
	"sentinel-brain/internal/modules/advice/repository"
	"sentinel-brain/internal/modules/advice/types"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		SQLiteDriver:       "sqlite3",
		SQLitePath:         filepath.Join(t.TempDir(), "sentinel.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRun_Usage(t *testing.T) {
	cfg := testConfig(t)
	for _, args := range [][]string{nil, {"frobnicate"}, {"advice", "-bogus"}} {
		err := run(context.Background(), cfg, discard(), args, io.Discard)
		if !errors.Is(err, errUsage) {
			t.Errorf("args %v: err = %v; want usage error", args, err)
		}
	}
}

func TestRun_MigrateAdviceCount(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var out bytes.Buffer
	if err := run(ctx, cfg, discard(), []string{"migrate"}, &out); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "migrations applied") {
		t.Errorf("migrate output = %q", out.String())
	}

	conn, err := db.Open(cfg, discard())
	if err != nil {
		t.Fatal(err)
	}
	repo := repository.NewRepository(conn)
	for i, plant := range []string{"Basil", "Fern", "Basil"} {
		_, err := repo.Insert(ctx, types.AdviceRecord{
			PlantName:          plant,
			MoisturePercentage: float64(10 * i),
			AlertNeeded:        true,
			Advice:             "Water",
			Policy:             "threshold",
			Source:             "http",
			CreatedAt:          time.Date(2024, 5, 1, 12, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	_ = conn.Close()

	out.Reset()
	if err := run(ctx, cfg, discard(), []string{"count", "-plant", "Basil"}, &out); err != nil {
		t.Fatalf("count: %v", err)
	}
	if strings.TrimSpace(out.String()) != "2" {
		t.Errorf("count output = %q; want 2", out.String())
	}

	out.Reset()
	if err := run(ctx, cfg, discard(), []string{"advice", "-limit", "1"}, &out); err != nil {
		t.Fatalf("advice: %v", err)
	}
	var recs []types.AdviceRecord
	if err := json.Unmarshal(out.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v (%q)", err, out.String())
	}
	if len(recs) != 1 || recs[0].PlantName != "Basil" || recs[0].MoisturePercentage != 20 {
		t.Errorf("recs = %+v", recs)
	}
}

func TestRun_InvalidLimit(t *testing.T) {
	err := run(context.Background(), testConfig(t), discard(), []string{"advice", "-limit", "0"}, io.Discard)
	if err == nil || errors.Is(err, errUsage) {
		t.Errorf("err = %v; want limit error", err)
	}
}
