package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/tmrouter/internal/domain"
	"github.com/kailas-cloud/tmrouter/internal/usecase/translate"
)

var validate = validator.New()

// decodeAndValidate reads a JSON body into v and runs struct validation.
func decodeAndValidate(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return validationMessage(err)
	}
	return nil
}

// validationMessage flattens validator errors into "field: rule" pairs.
func validationMessage(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, ", "))
}

type translateRequest struct {
	Text           string `json:"text" validate:"required,max=10000"`
	TargetLanguage string `json:"target_language" validate:"omitempty,min=2,max=16"`
	SourceLanguage string `json:"source_language" validate:"omitempty,min=2,max=16"`
	Domain         string `json:"domain" validate:"max=64"`
	UseGlossary    *bool  `json:"use_glossary"`
	UseMemory      *bool  `json:"use_memory"`
}

func (r translateRequest) toDomain() translate.Request {
	target := r.TargetLanguage
	if target == "" {
		target = domain.DefaultTargetLanguage
	}
	return translate.Request{
		Text:           r.Text,
		TargetLanguage: target,
		SourceLanguage: r.SourceLanguage,
		Domain:         r.Domain,
		UseGlossary:    boolOr(r.UseGlossary, true),
		UseMemory:      boolOr(r.UseMemory, true),
	}
}

type translateResponse struct {
	RequestID        string                    `json:"request_id"`
	Translation      string                    `json:"translation"`
	SourceText       string                    `json:"source_text"`
	TargetLanguage   string                    `json:"target_language"`
	Action           string                    `json:"action"`
	Confidence       float64                   `json:"confidence"`
	GlossaryMatches  []domain.TermMatch        `json:"glossary_matches"`
	MemoryMatches    []domain.TranslationMatch `json:"memory_matches"`
	ModelUsed        string                    `json:"model_used"`
	ProcessingTimeMs float64                   `json:"processing_time_ms"`
}

func translateResponseFrom(resp translate.Response) translateResponse {
	return translateResponse{
		RequestID:        resp.RequestID,
		Translation:      resp.Translation,
		SourceText:       resp.SourceText,
		TargetLanguage:   resp.TargetLanguage,
		Action:           string(resp.Action),
		Confidence:       resp.Confidence,
		GlossaryMatches:  nonNil(resp.GlossaryMatches),
		MemoryMatches:    nonNil(resp.MemoryMatches),
		ModelUsed:        resp.ModelUsed,
		ProcessingTimeMs: float64(resp.ProcessingTime.Microseconds()) / 1000,
	}
}

type feedbackRequest struct {
	RequestID      string   `json:"request_id" validate:"max=64"`
	SourceText     string   `json:"source_text" validate:"required,max=10000"`
	TargetText     string   `json:"target_text" validate:"required,max=10000"`
	SourceLanguage string   `json:"source_language" validate:"omitempty,min=2,max=16"`
	TargetLanguage string   `json:"target_language" validate:"required,min=2,max=16"`
	Domain         string   `json:"domain" validate:"max=64"`
	IsAccepted     *bool    `json:"is_accepted" validate:"required"`
	Feedback       string   `json:"feedback" validate:"max=2000"`
	Confidence     *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

func (r feedbackRequest) toDomain() translate.Feedback {
	source := r.SourceLanguage
	if source == "" {
		source = domain.DefaultSourceLanguage
	}
	return translate.Feedback{
		RequestID:      r.RequestID,
		SourceText:     r.SourceText,
		TargetText:     r.TargetText,
		SourceLanguage: source,
		TargetLanguage: r.TargetLanguage,
		Domain:         r.Domain,
		Accepted:       *r.IsAccepted,
		Confidence:     r.Confidence,
	}
}

type feedbackResponse struct {
	Message string `json:"message"`
	PairID  int64  `json:"pair_id,omitempty"`
	Stored  bool   `json:"stored"`
	Indexed bool   `json:"indexed"`
}

type searchRequest struct {
	Text                string   `json:"text" validate:"required,max=10000"`
	TargetLanguage      string   `json:"target_language" validate:"omitempty,min=2,max=16"`
	SourceLanguage      string   `json:"source_language" validate:"omitempty,min=2,max=16"`
	TopK                int      `json:"top_k" validate:"omitempty,min=1,max=100"`
	SimilarityThreshold *float64 `json:"similarity_threshold" validate:"omitempty,gte=-1,lte=1"`
}

type addPairRequest struct {
	SourceText     string         `json:"source_text" validate:"required,max=10000"`
	TargetText     string         `json:"target_text" validate:"required,max=10000"`
	SourceLanguage string         `json:"source_language" validate:"omitempty,min=2,max=16"`
	TargetLanguage string         `json:"target_language" validate:"required,min=2,max=16"`
	Domain         string         `json:"domain" validate:"max=64"`
	Confidence     *float64       `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Metadata       map[string]any `json:"metadata"`
}

func (r addPairRequest) toDomain() domain.TranslationPair {
	source := r.SourceLanguage
	if source == "" {
		source = domain.DefaultSourceLanguage
	}
	confidence := 1.0
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	return domain.TranslationPair{
		SourceText:     r.SourceText,
		TargetText:     r.TargetText,
		SourceLanguage: source,
		TargetLanguage: r.TargetLanguage,
		Domain:         r.Domain,
		Confidence:     confidence,
		Metadata:       r.Metadata,
	}
}

type addPairResponse struct {
	ID      int64 `json:"id"`
	Indexed bool  `json:"indexed"`
}

type glossaryTerm struct {
	ID                   int64  `json:"id,omitempty"`
	Term                 string `json:"term" validate:"required,max=256"`
	PreferredTranslation string `json:"preferred_translation" validate:"required,max=256"`
	TargetLanguage       string `json:"target_language" validate:"omitempty,min=2,max=16"`
	Notes                string `json:"notes,omitempty" validate:"max=1000"`
	Domain               string `json:"domain,omitempty" validate:"max=64"`
}

func glossaryTermFrom(g domain.GlossaryTerm) glossaryTerm {
	return glossaryTerm{
		ID:                   g.ID,
		Term:                 g.Term,
		PreferredTranslation: g.PreferredTranslation,
		TargetLanguage:       g.TargetLanguage,
		Notes:                g.Notes,
		Domain:               g.Domain,
	}
}

func (g glossaryTerm) toDomain() domain.GlossaryTerm {
	return domain.GlossaryTerm{
		Term:                 g.Term,
		PreferredTranslation: g.PreferredTranslation,
		TargetLanguage:       g.TargetLanguage,
		Notes:                g.Notes,
		Domain:               g.Domain,
	}
}

type glossaryListResponse struct {
	Items []glossaryTerm `json:"items"`
	Total int            `json:"total"`
}

type extractRequest struct {
	Text           string `json:"text" validate:"required,max=10000"`
	TargetLanguage string `json:"target_language" validate:"omitempty,min=2,max=16"`
}

type extractResponse struct {
	Text           string             `json:"text"`
	TargetLanguage string             `json:"target_language"`
	Matches        []domain.TermMatch `json:"matches"`
	Substituted    string             `json:"substituted"`
}

type statsResponse struct {
	EntryCount          int     `json:"entry_count"`
	IndexSize           int     `json:"index_size"`
	GlossaryTerms       int     `json:"glossary_terms"`
	EmbeddingModel      string  `json:"embedding_model"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	TopK                int     `json:"top_k"`
	DirectUseThreshold  float64 `json:"direct_use_threshold"`
	Generator           string  `json:"generator"`
	Budget              any     `json:"budget,omitempty"`
}

func statsResponseFrom(st translate.Stats) statsResponse {
	resp := statsResponse{
		EntryCount:          st.EntryCount,
		IndexSize:           st.IndexSize,
		GlossaryTerms:       st.GlossaryTerms,
		EmbeddingModel:      st.EmbeddingModel,
		SimilarityThreshold: st.SimilarityThreshold,
		TopK:                st.TopK,
		DirectUseThreshold:  st.DirectUseThreshold,
		Generator:           st.Generator,
	}
	if st.Budget != nil {
		resp.Budget = st.Budget
	}
	return resp
}

type previewQuery struct {
	Text           string `validate:"required,max=10000"`
	TargetLanguage string `validate:"omitempty,min=2,max=16"`
	SourceLanguage string `validate:"omitempty,min=2,max=16"`
	Domain         string `validate:"max=64"`
}

func previewQueryFrom(r *http.Request) previewQuery {
	q := r.URL.Query()
	return previewQuery{
		Text:           q.Get("text"),
		TargetLanguage: q.Get("target_language"),
		SourceLanguage: q.Get("source_language"),
		Domain:         q.Get("domain"),
	}
}

func (p previewQuery) toDomain() translate.Request {
	target := p.TargetLanguage
	if target == "" {
		target = domain.DefaultTargetLanguage
	}
	return translate.Request{
		Text:           p.Text,
		TargetLanguage: target,
		SourceLanguage: p.SourceLanguage,
		Domain:         p.Domain,
		UseGlossary:    true,
		UseMemory:      true,
	}
}

type previewResponse struct {
	Text            string `json:"text"`
	TargetLanguage  string `json:"target_language"`
	System          string `json:"system"`
	Prompt          string `json:"prompt"`
	PromptLength    int    `json:"prompt_length"`
	GlossaryMatches int    `json:"glossary_matches"`
	MemoryMatches   int    `json:"memory_matches"`
}

type componentResponse struct {
	Status     string         `json:"status"`
	Detail     map[string]any `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs float64        `json:"duration_ms"`
}

type selfTestResponse struct {
	Overall    string                       `json:"overall"`
	Working    int                          `json:"working"`
	Total      int                          `json:"total"`
	Components map[string]componentResponse `json:"components"`
	CheckedAt  string                       `json:"checked_at"`
}

func selfTestResponseFrom(rep translate.SelfTestReport) selfTestResponse {
	comps := make(map[string]componentResponse, len(rep.Components))
	for name, c := range rep.Components {
		comps[name] = componentResponse{
			Status:     c.Status,
			Detail:     c.Detail,
			Error:      c.Error,
			DurationMs: float64(c.Duration.Microseconds()) / 1000,
		}
	}
	return selfTestResponse{
		Overall:    fmt.Sprintf("%d/%d components working", rep.Working, rep.Total),
		Working:    rep.Working,
		Total:      rep.Total,
		Components: comps,
		CheckedAt:  rep.CheckedAt.Format(time.RFC3339),
	}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
