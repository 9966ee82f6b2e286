package sqldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tm.db")
	db, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	var one int
	if err := db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if one != 1 {
		t.Errorf("expected 1, got %d", one)
	}
}

func TestOpen_Validation(t *testing.T) {
	tests := map[string]Config{
		"unknown driver":  {Driver: "mysql"},
		"sqlite no path":  {Driver: DriverSQLite},
		"postgres no dsn": {Driver: DriverPostgres},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Open(context.Background(), cfg, zap.NewNop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestQueryOperation(t *testing.T) {
	tests := map[string]string{
		"PRAGMA journal_mode":                 "PRAGMA",
		"VACUUM":                              "VACUUM",
		"averyveryverylongstatementname here": "averyveryverylon",
	}
	for query, want := range tests {
		if got := eventOperation(&bun.QueryEvent{Query: query}); got != want {
			t.Errorf("eventOperation(%q) = %q, want %q", query, got, want)
		}
	}
}
