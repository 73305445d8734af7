package history

import (
	"reflect"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
)

// Record is the persisted description of one completed generation. Records
// are append-only: they are created once and only ever deleted. Readers must
// treat every Performance counter and Cost as optional; older rows may lack
// them.
type Record struct {
	ID             string           `json:"id"`
	JobToken       string           `json:"jobToken"`
	Type           domain.MediaType `json:"type"`
	Model          string           `json:"model"`
	ModelLabel     string           `json:"modelLabel,omitempty"`
	Prompt         string           `json:"prompt"`
	NegativePrompt string           `json:"negativePrompt,omitempty"`
	Parameters     map[string]any   `json:"parameters"`
	Outputs        []Output         `json:"outputs"`
	Performance    Performance      `json:"performance"`
	Cost           *Cost            `json:"cost,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Output is one generated artifact, in generation order.
type Output struct {
	ArtifactRef string   `json:"artifactRef"`
	Format      string   `json:"format"`
	Width       *int     `json:"width,omitempty"`
	Height      *int     `json:"height,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

type Performance struct {
	TokensUsed      *int      `json:"tokensUsed,omitempty"`
	InputTokens     *int      `json:"inputTokens,omitempty"`
	OutputTokens    *int      `json:"outputTokens,omitempty"`
	ExecutionTimeMs *int64    `json:"executionTimeMs,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
}

type Cost struct {
	EstimatedCost float64 `json:"estimatedCost"`
	Currency      string  `json:"currency"`
}

// Entry is what the orchestrator hands over when a generation succeeded.
type Entry struct {
	JobToken   string
	Request    generation.Request
	Artifacts  []domain.Artifact
	Usage      *domain.Usage
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

// BuildRecord normalizes entry into a Record with the given id.
func BuildRecord(entry Entry, id string) *Record {
	req := entry.Request
	prompt := req.UserPrompt
	if prompt == "" {
		prompt = req.Prompt
	}
	rec := &Record{
		ID:             id,
		JobToken:       entry.JobToken,
		Type:           req.Type,
		Model:          req.Model,
		ModelLabel:     req.ModelLabel,
		Prompt:         prompt,
		NegativePrompt: req.NegativePrompt,
		Parameters:     FilterParameters(req.Parameters),
		Outputs:        buildOutputs(entry.Artifacts),
		Performance: Performance{
			StartTime: entry.StartedAt.UTC(),
			EndTime:   entry.FinishedAt.UTC(),
		},
		CreatedAt: entry.FinishedAt.UTC(),
	}
	if entry.Elapsed > 0 {
		ms := entry.Elapsed.Milliseconds()
		rec.Performance.ExecutionTimeMs = &ms
	}
	if !entry.Usage.Empty() {
		rec.Performance.TokensUsed = copyInt(entry.Usage.TotalTokens)
		rec.Performance.InputTokens = copyInt(entry.Usage.InputTokens)
		rec.Performance.OutputTokens = copyInt(entry.Usage.OutputTokens)
		if rec.Performance.TokensUsed == nil && rec.Performance.InputTokens != nil && rec.Performance.OutputTokens != nil {
			total := *rec.Performance.InputTokens + *rec.Performance.OutputTokens
			rec.Performance.TokensUsed = &total
		}
		rec.Cost = EstimateCost(req.Model, rec.Performance)
	}
	return rec
}

func buildOutputs(artifacts []domain.Artifact) []Output {
	outputs := make([]Output, 0, len(artifacts))
	for _, a := range artifacts {
		ref := a.StorageRef
		if ref == "" {
			ref = a.URL
		}
		out := Output{ArtifactRef: ref, Format: a.Format}
		if a.Width > 0 {
			w := a.Width
			out.Width = &w
		}
		if a.Height > 0 {
			h := a.Height
			out.Height = &h
		}
		if a.Duration > 0 {
			d := a.Duration
			out.Duration = &d
		}
		outputs = append(outputs, out)
	}
	return outputs
}

// FilterParameters copies src without empty strings, nils and nil pointers.
// Zero numbers and false are kept.
func FilterParameters(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if isEmptyValue(v) {
			continue
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
			v = rv.Elem().Interface()
		}
		out[k] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
