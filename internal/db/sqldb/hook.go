package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const maxQueryOpNameLen = 16

// QueryHook logs failed and slow queries, and every query in debug mode.
type QueryHook struct {
	logger *zap.Logger
	slow   time.Duration
	debug  bool
}

// NewQueryHook creates a zap-backed bun query hook.
func NewQueryHook(logger *zap.Logger, slow time.Duration, debug bool) *QueryHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHook{logger: logger.Named("sql"), slow: slow, debug: debug}
}

// BeforeQuery implements bun.QueryHook.
func (*QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	dur := time.Since(event.StartTime)
	fields := []zap.Field{
		zap.String("op", eventOperation(event)),
		zap.String("query", event.Query),
		zap.Duration("duration", dur),
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Error("Query failed", append(fields, zap.Error(event.Err))...)
	case h.slow > 0 && dur >= h.slow:
		h.logger.Warn("Slow query", fields...)
	case h.debug:
		h.logger.Debug("Query", fields...)
	}
}

func eventOperation(event *bun.QueryEvent) string {
	switch event.IQuery.(type) {
	case *bun.SelectQuery:
		return "SELECT"
	case *bun.InsertQuery:
		return "INSERT"
	case *bun.UpdateQuery:
		return "UPDATE"
	case *bun.DeleteQuery:
		return "DELETE"
	case *bun.CreateTableQuery:
		return "CREATE TABLE"
	case *bun.CreateIndexQuery:
		return "CREATE INDEX"
	}
	name := event.Query
	if idx := strings.Index(name, " "); idx > 0 {
		name = name[:idx]
	}
	if len(name) > maxQueryOpNameLen {
		name = name[:maxQueryOpNameLen]
	}
	return name
}
