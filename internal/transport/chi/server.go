// Package chi exposes the translation engine over HTTP.
package chi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	logpkg "github.com/kailas-cloud/tmrouter/internal/logger"
	"github.com/kailas-cloud/tmrouter/internal/metrics"
	healthuc "github.com/kailas-cloud/tmrouter/internal/usecase/health"
	"github.com/kailas-cloud/tmrouter/internal/usecase/retrieval"
	"github.com/kailas-cloud/tmrouter/internal/version"
)

// ServiceName identifies the server in traces.
const ServiceName = "tmrouter"

// Server holds the HTTP handlers.
type Server struct {
	translator Translator
	memory     Memory
	glossary   Glossary
	health     HealthChecker
	logger     *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(translator Translator, memory Memory, glossary Glossary, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		translator: translator,
		memory:     memory,
		glossary:   glossary,
		health:     health,
		logger:     logger,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(apiKeys []string) http.Handler {
	metrics.RegisterHTTPMetrics()

	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(otelchi.Middleware(ServiceName,
		otelchi.WithChiRoutes(r),
		otelchi.WithRequestMethodInSpanName(true),
	))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware("/metrics"))

	r.Post("/translate", s.Translate)
	r.Post("/feedback", s.Feedback)
	r.Route("/memory", func(r chi.Router) {
		r.Post("/", s.AddPair)
		r.Post("/search", s.SearchMemory)
	})
	r.Route("/glossary", func(r chi.Router) {
		r.Get("/terms", s.ListGlossaryTerms)
		r.Post("/terms", s.AddGlossaryTerm)
		r.Post("/extract", s.ExtractTerms)
	})
	r.Get("/stats", s.Stats)
	r.Get("/health", s.HealthCheck)
	r.Get("/test", s.SelfTest)
	r.Get("/debug/prompt", s.PreviewPrompt)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Translate handles POST /translate.
func (s *Server) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.translator.Translate(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponseFrom(resp))
}

// Feedback handles POST /feedback.
func (s *Server) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Feedback != "" {
		s.requestLogger(r).Info("Reviewer comment", zap.String("feedback", req.Feedback))
	}

	res, err := s.translator.Feedback(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{
		Message: "Feedback received successfully",
		PairID:  res.PairID,
		Stored:  res.Stored,
		Indexed: res.Indexed,
	})
}

// SearchMemory handles POST /memory/search.
func (s *Server) SearchMemory(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	q := retrieval.Query{
		Text:                req.Text,
		TargetLanguage:      req.TargetLanguage,
		SourceLanguage:      req.SourceLanguage,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
	}
	if q.TargetLanguage == "" {
		q.TargetLanguage = domain.DefaultTargetLanguage
	}

	res, err := s.memory.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	res.Matches = nonNil(res.Matches)
	writeJSON(w, http.StatusOK, res)
}

// AddPair handles POST /memory.
func (s *Server) AddPair(w http.ResponseWriter, r *http.Request) {
	var req addPairRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.memory.Append(r.Context(), req.toDomain())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, addPairResponse{ID: id, Indexed: true})
	case id != 0 && (errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, domain.ErrPersistence)):
		s.requestLogger(r).Warn("Pair stored, index update deferred", zap.Int64("pair_id", id), zap.Error(err))
		writeJSON(w, http.StatusCreated, addPairResponse{ID: id})
	default:
		s.handleDomainError(w, r, err)
	}
}

// ListGlossaryTerms handles GET /glossary/terms?target_language=xx.
func (s *Server) ListGlossaryTerms(w http.ResponseWriter, r *http.Request) {
	terms := s.glossary.List(r.URL.Query().Get("target_language"))
	items := make([]glossaryTerm, len(terms))
	for i, t := range terms {
		items[i] = glossaryTermFrom(t)
	}
	writeJSON(w, http.StatusOK, glossaryListResponse{Items: items, Total: len(items)})
}

// AddGlossaryTerm handles POST /glossary/terms.
func (s *Server) AddGlossaryTerm(w http.ResponseWriter, r *http.Request) {
	var req glossaryTerm
	if !s.decode(w, r, &req) {
		return
	}

	g, err := s.glossary.Add(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, glossaryTermFrom(g))
}

// ExtractTerms handles POST /glossary/extract.
func (s *Server) ExtractTerms(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	lang := req.TargetLanguage
	if lang == "" {
		lang = domain.DefaultTargetLanguage
	}
	writeJSON(w, http.StatusOK, extractResponse{
		Text:           req.Text,
		TargetLanguage: lang,
		Matches:        nonNil(s.glossary.ExtractTerms(req.Text, lang)),
		Substituted:    s.glossary.Substitute(req.Text, lang),
	})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.translator.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponseFrom(st))
}

// SelfTest handles GET /test.
func (s *Server) SelfTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, selfTestResponseFrom(s.translator.SelfTest(r.Context())))
}

// PreviewPrompt handles GET /debug/prompt.
func (s *Server) PreviewPrompt(w http.ResponseWriter, r *http.Request) {
	q := previewQueryFrom(r)
	if err := validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err).Error())
		return
	}

	req := q.toDomain()
	p, err := s.translator.PreviewPrompt(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Text:            req.Text,
		TargetLanguage:  req.TargetLanguage,
		System:          p.System,
		Prompt:          p.Prompt,
		PromptLength:    p.Length,
		GlossaryMatches: p.GlossaryMatches,
		MemoryMatches:   p.MemoryMatches,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// decode writes a 400 and returns false when the body is malformed or invalid.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeAndValidate(r, v); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return false
	}
	return true
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}
