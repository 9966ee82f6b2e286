// Package prompt renders generative translation prompts.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/kailas-cloud/tmrouter/internal/domain"
)

// System is the system message sent with every translation prompt.
const System = "You are a professional translator specializing in technical and business content."

// DefaultTemplate lays out the request, glossary terms, memory matches and instructions.
const DefaultTemplate = `Translate the following text from {{ .SourceLanguage | default "en" }} to {{ .TargetLanguage }}:
{{- with .Domain }}
Domain: {{ . }}
{{- end }}
{{- with .Hints.Terms }}

Glossary Terms:
{{- range . }}
- {{ .Term }} → {{ .Translation }}
{{- with .Notes }}
  Note: {{ . }}
{{- end }}
{{- end }}
{{- end }}
{{- with .Hints.Matches }}

Translation Memory Matches:
{{- range . }}
- Source: {{ .SourceText }}
  Translation: {{ .TargetText }}
  Confidence: {{ .Confidence | printf "%.2f" }}
{{- end }}
{{- end }}

Translation Instructions:
- Maintain the original meaning and tone
- Use the provided glossary terms exactly as specified
- Follow the style shown in the translation memory examples
- Reply with the translation only

Text to translate: {{ .Text | trim }}`

// Builder renders prompts from a parsed template.
type Builder struct {
	tmpl *template.Template
}

// New parses text, or DefaultTemplate when text is empty.
func New(text string) (*Builder, error) {
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// Render builds the user prompt for req.
func (b *Builder) Render(req domain.GenerationRequest) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
