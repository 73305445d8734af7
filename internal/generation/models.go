package generation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genstudio/internal/domain"
)

// Model describes a backend model the studio knows how to drive. Prices are
// USD per million tokens and are zero when the backend does not bill tokens.
type Model struct {
	ID                 string
	Label              string
	Type               domain.MediaType
	InputPerMillion    float64
	OutputPerMillion   float64
	MaxSamples         int
	SupportsAudio      bool
	SupportsNegative   bool
	AllowedAspectRatio []string
}

var catalog = []Model{
	{ID: "imagen-4.0-generate-001", Label: "Imagen 4", Type: domain.MediaTypeImage, InputPerMillion: 0.30, OutputPerMillion: 30, MaxSamples: 4, SupportsNegative: true, AllowedAspectRatio: []string{"1:1", "3:4", "4:3", "9:16", "16:9"}},
	{ID: "imagen-4.0-ultra-generate-001", Label: "Imagen 4 Ultra", Type: domain.MediaTypeImage, InputPerMillion: 0.30, OutputPerMillion: 60, MaxSamples: 4, SupportsNegative: true, AllowedAspectRatio: []string{"1:1", "3:4", "4:3", "9:16", "16:9"}},
	{ID: "imagen-4.0-fast-generate-001", Label: "Imagen 4 Fast", Type: domain.MediaTypeImage, InputPerMillion: 0.30, OutputPerMillion: 20, MaxSamples: 4, SupportsNegative: true, AllowedAspectRatio: []string{"1:1", "3:4", "4:3", "9:16", "16:9"}},
	{ID: "gemini-2.5-flash-image", Label: "Gemini 2.5 Flash Image", Type: domain.MediaTypeImage, InputPerMillion: 0.30, OutputPerMillion: 30, MaxSamples: 1, AllowedAspectRatio: []string{"1:1", "3:4", "4:3", "9:16", "16:9"}},
	{ID: "veo-2.0-generate-001", Label: "Veo 2", Type: domain.MediaTypeVideo, MaxSamples: 2, SupportsNegative: true, AllowedAspectRatio: []string{"16:9", "9:16"}},
	{ID: "veo-3.0-generate-001", Label: "Veo 3", Type: domain.MediaTypeVideo, MaxSamples: 1, SupportsAudio: true, SupportsNegative: true, AllowedAspectRatio: []string{"16:9", "9:16"}},
	{ID: "veo-3.0-fast-generate-001", Label: "Veo 3 Fast", Type: domain.MediaTypeVideo, MaxSamples: 1, SupportsAudio: true, SupportsNegative: true, AllowedAspectRatio: []string{"16:9", "9:16"}},
}

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (Model, bool) {
	id = strings.TrimSpace(id)
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Models returns a copy of the catalog.
func Models() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// ModelLabel returns the human-readable name of a model. Models outside the
// catalog get a title-cased rendition of their identifier with version
// suffixes such as "-001" and "preview" tags dropped.
func ModelLabel(id string) string {
	if m, ok := LookupModel(id); ok {
		return m.Label
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "the selected model"
	}
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	var words []string
	for _, part := range strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' }) {
		if isNumeric(part) && len(part) == 3 {
			continue
		}
		if part == "preview" || part == "generate" {
			continue
		}
		words = append(words, part)
	}
	if len(words) == 0 {
		return id
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
