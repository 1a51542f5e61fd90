package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MJE43/wheel8/internal/engine"
)

func TestMigrationIdempotency(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wheel8.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Failed to migrate (pass %d): %v", i+1, err)
		}
	}

	cfg := testConfig(t)
	if err := db.InitializeConfig(ctx, "main", cfg); err != nil {
		t.Fatalf("Failed to initialize after multiple migrations: %v", err)
	}
	rec := spinRecord(t, "main", cfg, engine.RequesterID{7}, 1000, 42)
	if err := db.SaveSpin(ctx, rec); err != nil {
		t.Fatalf("Failed to save spin after multiple migrations: %v", err)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wheel8.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	cfg := testConfig(t)
	if err := db.InitializeConfig(ctx, "main", cfg); err != nil {
		t.Fatalf("InitializeConfig: %v", err)
	}
	rec := spinRecord(t, "main", cfg, engine.RequesterID{7}, 1000, 42)
	if err := db.SaveSpin(ctx, rec); err != nil {
		t.Fatalf("SaveSpin: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate reopened database: %v", err)
	}

	got, err := db.GetConfig(ctx, "main")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got != cfg {
		t.Errorf("config = %v, want %v", got, cfg)
	}

	spin, err := db.GetSpin(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSpin: %v", err)
	}
	if spin.Result() != rec.Result() {
		t.Errorf("result = %v, want %v", spin.Result(), rec.Result())
	}
}
