package health

import (
	"context"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the memory store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckEmpty indicates the vector index has no records.
	CheckEmpty CheckResult = "empty"
)

// Component names used as Report.Checks keys.
const (
	ComponentDatabase  = "database"
	ComponentCache     = "cache"
	ComponentEmbedding = "embedding"
	ComponentIndex     = "index"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps lists the checked components. Only DB is required.
type Deps struct {
	DB        DBPinger
	Cache     CachePinger
	Embedding EmbeddingChecker
	Index     IndexChecker
}

// Service coordinates health checks.
type Service struct {
	deps   Deps
	logger *zap.Logger
}

// New creates a Service.
func New(deps Deps, logger *zap.Logger) *Service {
	return &Service{deps: deps, logger: logger}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.deps.DB.PingContext(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.String("component", ComponentDatabase), zap.Error(err))
		checks[ComponentDatabase] = CheckError
		status = Unhealthy
	} else {
		checks[ComponentDatabase] = CheckOK
	}

	if s.deps.Cache != nil {
		checks[ComponentCache] = s.probe(ctx, ComponentCache, s.deps.Cache.Ping)
	}
	if s.deps.Embedding != nil {
		checks[ComponentEmbedding] = s.probe(ctx, ComponentEmbedding, s.deps.Embedding.HealthCheck)
	}
	if s.deps.Index != nil {
		checks[ComponentIndex] = CheckOK
		if !s.deps.Index.IndexLoaded() {
			checks[ComponentIndex] = CheckEmpty
		}
	}

	if status == Healthy {
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) probe(ctx context.Context, component string, fn func(context.Context) error) CheckResult {
	if err := fn(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.String("component", component), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
