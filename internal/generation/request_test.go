package generation

import (
	"errors"
	"strings"
	"testing"

	"genstudio/internal/domain"
)

func newTestBuilder() *Builder {
	return NewBuilder("imagen-4.0-generate-001", "veo-3.0-generate-001")
}

func TestBuildVideoDefaults(t *testing.T) {
	req, err := newTestBuilder().Build(FormState{
		Type:   domain.MediaTypeVideo,
		Prompt: "  a paper boat drifting down a rainy street  ",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if req.Model != "veo-3.0-generate-001" {
		t.Fatalf("Model = %q, want default video model", req.Model)
	}
	if req.ModelLabel != "Veo 3" {
		t.Fatalf("ModelLabel = %q, want Veo 3", req.ModelLabel)
	}
	if req.AspectRatio != DefaultVideoAspectRatio {
		t.Fatalf("AspectRatio = %q, want %q", req.AspectRatio, DefaultVideoAspectRatio)
	}
	if req.DurationSeconds != DefaultVideoDuration {
		t.Fatalf("DurationSeconds = %d, want %d", req.DurationSeconds, DefaultVideoDuration)
	}
	if req.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, want 1", req.SampleCount)
	}
	if req.UserPrompt != "a paper boat drifting down a rainy street" {
		t.Fatalf("UserPrompt not trimmed: %q", req.UserPrompt)
	}
	if req.Locale != DefaultLocale {
		t.Fatalf("Locale = %q, want %q", req.Locale, DefaultLocale)
	}
	if got := req.Parameters["durationSeconds"]; got != DefaultVideoDuration {
		t.Fatalf("parameters durationSeconds = %v", got)
	}
}

func TestBuildImageClampsSamplesAndDropsVideoFields(t *testing.T) {
	audio := true
	req, err := newTestBuilder().Build(FormState{
		Type:            domain.MediaTypeImage,
		Model:           "gemini-2.5-flash-image",
		Prompt:          "studio shot of a ceramic mug",
		SampleCount:     4,
		DurationSeconds: 6,
		Resolution:      "1080p",
		GenerateAudio:   &audio,
		NegativePrompt:  "blurry",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if req.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, want clamp to 1", req.SampleCount)
	}
	if req.DurationSeconds != 0 || req.Resolution != "" || req.GenerateAudio != nil {
		t.Fatalf("video-only fields leaked into image request: %+v", req)
	}
	if req.NegativePrompt != "" {
		t.Fatalf("negative prompt should be dropped for models without support")
	}
	if _, ok := req.Parameters["durationSeconds"]; ok {
		t.Fatalf("image parameters should not carry durationSeconds")
	}
}

func TestBuildRejectsInvalidForms(t *testing.T) {
	tests := []struct {
		name string
		form FormState
		want error
	}{
		{name: "missing prompt", form: FormState{Type: domain.MediaTypeImage}, want: domain.ErrInvalidRequest},
		{name: "bad type", form: FormState{Type: "audio", Prompt: "hello there"}, want: domain.ErrInvalidRequest},
		{name: "bad aspect", form: FormState{Type: domain.MediaTypeImage, Prompt: "hello there", AspectRatio: "2:1"}, want: domain.ErrInvalidRequest},
		{name: "unsupported aspect for model", form: FormState{Type: domain.MediaTypeVideo, Prompt: "hello there", AspectRatio: "1:1"}, want: domain.ErrInvalidRequest},
		{name: "image model for video", form: FormState{Type: domain.MediaTypeVideo, Model: "imagen-4.0-generate-001", Prompt: "hello there"}, want: domain.ErrUnknownModel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestBuilder().Build(tc.form)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Build() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBuildPassesThroughUnknownModels(t *testing.T) {
	req, err := newTestBuilder().Build(FormState{
		Type:   domain.MediaTypeVideo,
		Model:  "veo-3.1-generate-preview",
		Prompt: "a lighthouse at dusk",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if req.ModelLabel != "Veo 3.1" {
		t.Fatalf("ModelLabel = %q, want Veo 3.1", req.ModelLabel)
	}
}

func TestBuildComposesLocaleHint(t *testing.T) {
	req, err := newTestBuilder().Build(FormState{
		Type:   domain.MediaTypeImage,
		Prompt: "poster for a night market",
		Style:  "risograph",
		Locale: "id-ID",
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if req.Locale != "id" {
		t.Fatalf("Locale = %q, want id", req.Locale)
	}
	if !strings.Contains(req.Prompt, "Style: risograph") {
		t.Fatalf("prompt missing style: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "Indonesian") {
		t.Fatalf("prompt missing language hint: %q", req.Prompt)
	}
}

func TestRequestCloneIsDeep(t *testing.T) {
	seed := 7
	orig := Request{Seed: &seed, Parameters: map[string]any{"seed": 7}}
	clone := orig.Clone()
	*clone.Seed = 9
	clone.Parameters["seed"] = 9
	if *orig.Seed != 7 || orig.Parameters["seed"] != 7 {
		t.Fatalf("mutating clone changed original: %+v", orig)
	}
}

func TestBuildParametersDoNotAliasForm(t *testing.T) {
	seed := 42
	audio := true
	enhance := false
	form := FormState{
		Type:          domain.MediaTypeVideo,
		Prompt:        "lanterns over a river",
		Seed:          &seed,
		GenerateAudio: &audio,
		EnhancePrompt: &enhance,
	}
	req, err := newTestBuilder().Build(form)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	seed = 1
	audio = false
	enhance = true

	if got := req.Parameters["seed"]; got != 42 {
		t.Fatalf("parameters seed = %v, want 42", got)
	}
	if got := req.Parameters["generateAudio"]; got != true {
		t.Fatalf("parameters generateAudio = %v, want true", got)
	}
	if got := req.Parameters["enhancePrompt"]; got != false {
		t.Fatalf("parameters enhancePrompt = %v, want false", got)
	}
	if *req.Seed != 42 || !*req.GenerateAudio || *req.EnhancePrompt {
		t.Fatalf("request fields follow the form: seed=%d audio=%t enhance=%t", *req.Seed, *req.GenerateAudio, *req.EnhancePrompt)
	}

	clone := req.Clone()
	clone.Parameters["seed"] = 7
	if req.Parameters["seed"] != 42 {
		t.Fatalf("mutating clone parameters changed original")
	}
}

func TestCloneCopiesPointerParameters(t *testing.T) {
	seed := 5
	orig := Request{Parameters: map[string]any{"seed": &seed}}
	clone := orig.Clone()
	seed = 6
	if got := clone.Parameters["seed"]; got != 5 {
		t.Fatalf("clone parameters seed = %v, want 5", got)
	}
}

func TestModelLabel(t *testing.T) {
	cases := map[string]string{
		"veo-2.0-generate-001":            "Veo 2",
		"models/lyria-002":                "Lyria",
		"custom_model-x":                  "Custom Model X",
		"":                                "the selected model",
		"imagen-4.0-ultra-generate-001":   "Imagen 4 Ultra",
		"publishers/google/models/foo-01": "Foo 01",
	}
	for id, want := range cases {
		if got := ModelLabel(id); got != want {
			t.Fatalf("ModelLabel(%q) = %q, want %q", id, got, want)
		}
	}
}
