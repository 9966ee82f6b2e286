package health

import "context"

// DBPinger checks relational store availability.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger checks the Redis connection.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker reports whether the vector index holds records.
type IndexChecker interface {
	IndexLoaded() bool
}
