package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"genstudio/internal/domain"
)

const (
	DefaultImageAspectRatio = "1:1"
	DefaultVideoAspectRatio = "16:9"
	DefaultVideoDuration    = 8
	MinVideoDuration        = 4
	MaxVideoDuration        = 8
	DefaultLocale           = "en"
)

// FormState is what the client submits. It mirrors the generation form and is
// never handed to the backend directly; Build turns it into a Request.
type FormState struct {
	Type             domain.MediaType `json:"type" validate:"required,oneof=image video"`
	Model            string           `json:"model" validate:"omitempty,max=128"`
	Prompt           string           `json:"prompt" validate:"required,min=3,max=4000"`
	NegativePrompt   string           `json:"negative_prompt" validate:"max=2000"`
	AspectRatio      string           `json:"aspect_ratio" validate:"omitempty,oneof=1:1 3:4 4:3 9:16 16:9"`
	SampleCount      int              `json:"sample_count" validate:"min=0,max=4"`
	DurationSeconds  int              `json:"duration_seconds" validate:"min=0,max=8"`
	Resolution       string           `json:"resolution" validate:"omitempty,oneof=720p 1080p"`
	Seed             *int             `json:"seed" validate:"omitempty,min=0"`
	GenerateAudio    *bool            `json:"generate_audio"`
	EnhancePrompt    *bool            `json:"enhance_prompt"`
	PersonGeneration string           `json:"person_generation" validate:"omitempty,oneof=dont_allow allow_adult allow_all"`
	Style            string           `json:"style" validate:"max=64"`
	Locale           string           `json:"locale" validate:"max=35"`
}

// Request is the immutable snapshot of what was submitted. Once built it is
// only ever copied; reconciliation and history use it instead of the live
// form.
type Request struct {
	Type             domain.MediaType `json:"type"`
	Model            string           `json:"model"`
	ModelLabel       string           `json:"modelLabel"`
	Prompt           string           `json:"prompt"`
	UserPrompt       string           `json:"userPrompt"`
	NegativePrompt   string           `json:"negativePrompt,omitempty"`
	AspectRatio      string           `json:"aspectRatio"`
	SampleCount      int              `json:"sampleCount"`
	DurationSeconds  int              `json:"durationSeconds,omitempty"`
	Resolution       string           `json:"resolution,omitempty"`
	Seed             *int             `json:"seed,omitempty"`
	GenerateAudio    *bool            `json:"generateAudio,omitempty"`
	EnhancePrompt    *bool            `json:"enhancePrompt,omitempty"`
	PersonGeneration string           `json:"personGeneration,omitempty"`
	Locale           string           `json:"locale"`
	Parameters       map[string]any   `json:"parameters"`
}

// Clone returns a deep copy so that later mutation of either side is not
// observable through the other.
func (r Request) Clone() Request {
	out := r
	if r.Seed != nil {
		v := *r.Seed
		out.Seed = &v
	}
	if r.GenerateAudio != nil {
		v := *r.GenerateAudio
		out.GenerateAudio = &v
	}
	if r.EnhancePrompt != nil {
		v := *r.EnhancePrompt
		out.EnhancePrompt = &v
	}
	if r.Parameters != nil {
		out.Parameters = make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			out.Parameters[k] = copyParam(v)
		}
	}
	return out
}

// Builder assembles Requests from form state.
type Builder struct {
	validate      *validator.Validate
	defaultModels map[domain.MediaType]string
}

func NewBuilder(defaultImageModel, defaultVideoModel string) *Builder {
	return &Builder{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		defaultModels: map[domain.MediaType]string{
			domain.MediaTypeImage: strings.TrimSpace(defaultImageModel),
			domain.MediaTypeVideo: strings.TrimSpace(defaultVideoModel),
		},
	}
}

// Build validates form and returns the request snapshot to submit.
func (b *Builder) Build(form FormState) (Request, error) {
	form.Prompt = strings.TrimSpace(form.Prompt)
	form.NegativePrompt = strings.TrimSpace(form.NegativePrompt)
	form.Model = strings.TrimSpace(form.Model)
	if err := b.validate.Struct(form); err != nil {
		return Request{}, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, describeValidation(err))
	}

	modelID := form.Model
	if modelID == "" {
		modelID = b.defaultModels[form.Type]
	}
	if modelID == "" {
		return Request{}, fmt.Errorf("%w: no default %s model configured", domain.ErrUnknownModel, form.Type)
	}
	model, known := LookupModel(modelID)
	if known && model.Type != form.Type {
		return Request{}, fmt.Errorf("%w: %s cannot generate %s", domain.ErrUnknownModel, model.Label, form.Type)
	}

	req := Request{
		Type:             form.Type,
		Model:            modelID,
		ModelLabel:       ModelLabel(modelID),
		UserPrompt:       form.Prompt,
		NegativePrompt:   form.NegativePrompt,
		AspectRatio:      form.AspectRatio,
		SampleCount:      form.SampleCount,
		Resolution:       form.Resolution,
		Seed:             form.Seed,
		EnhancePrompt:    form.EnhancePrompt,
		PersonGeneration: form.PersonGeneration,
		Locale:           NormalizeLocale(form.Locale),
	}

	switch form.Type {
	case domain.MediaTypeImage:
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultImageAspectRatio
		}
		req.Resolution = ""
	case domain.MediaTypeVideo:
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultVideoAspectRatio
		}
		req.DurationSeconds = clamp(form.DurationSeconds, MinVideoDuration, MaxVideoDuration, DefaultVideoDuration)
		if !known || model.SupportsAudio {
			req.GenerateAudio = form.GenerateAudio
		}
	}

	maxSamples := 4
	if known {
		maxSamples = model.MaxSamples
		if !allowed(model.AllowedAspectRatio, req.AspectRatio) {
			return Request{}, fmt.Errorf("%w: %s does not support aspect ratio %s", domain.ErrInvalidRequest, model.Label, req.AspectRatio)
		}
		if !model.SupportsNegative {
			req.NegativePrompt = ""
		}
	}
	req.SampleCount = clamp(form.SampleCount, 1, maxSamples, 1)
	req.Prompt = composePrompt(form.Prompt, form.Style, req.Locale)
	req.Parameters = parameters(req, form.Style)

	return req.Clone(), nil
}

func parameters(req Request, style string) map[string]any {
	params := map[string]any{
		"aspectRatio":      req.AspectRatio,
		"sampleCount":      req.SampleCount,
		"resolution":       req.Resolution,
		"seed":             deref(req.Seed),
		"enhancePrompt":    deref(req.EnhancePrompt),
		"personGeneration": req.PersonGeneration,
		"style":            strings.TrimSpace(style),
		"locale":           req.Locale,
	}
	if req.Type == domain.MediaTypeVideo {
		params["durationSeconds"] = req.DurationSeconds
		params["generateAudio"] = deref(req.GenerateAudio)
	}
	return params
}

// deref stores optional values by value so the map never aliases form state.
// Unset options stay nil.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func copyParam(v any) any {
	switch p := v.(type) {
	case *int:
		return deref(p)
	case *bool:
		return deref(p)
	case *float64:
		return deref(p)
	case *string:
		return deref(p)
	}
	return v
}

func composePrompt(prompt, style, locale string) string {
	var b strings.Builder
	b.WriteString(prompt)
	if style = strings.TrimSpace(style); style != "" {
		b.WriteString("\nStyle: ")
		b.WriteString(style)
	}
	if locale != "" && locale != DefaultLocale {
		if name := languageName(locale); name != "" {
			b.WriteString("\nAny visible text should be written in ")
			b.WriteString(name)
			b.WriteString(".")
		}
	}
	return b.String()
}

// NormalizeLocale reduces a BCP 47 tag to its base language, falling back to
// DefaultLocale for empty or unparsable input.
func NormalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return DefaultLocale
	}
	base, _ := tag.Base()
	return base.String()
}

func languageName(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func clamp(v, lo, hi, fallback int) int {
	if v <= 0 {
		v = fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func allowed(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
