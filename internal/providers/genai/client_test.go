package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Breaker: &BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 3},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func TestGenerateImagesPredict(t *testing.T) {
	img := tinyPNG(t, 4, 3)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/imagen-4.0-generate-001:predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var body predictRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Parameters.SampleCount != 2 || body.Parameters.AspectRatio != "4:3" {
			t.Errorf("unexpected parameters: %+v", body.Parameters)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(img), "mimeType": "image/png"},
				{"raiFilteredReason": "filtered"},
			},
		})
	})

	res, err := client.GenerateImages(context.Background(), ImageRequest{
		Model:       "imagen-4.0-generate-001",
		Prompt:      "a red apple",
		AspectRatio: "4:3",
		SampleCount: 2,
	})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if len(res.Assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(res.Assets))
	}
	if res.Assets[0].Width != 4 || res.Assets[0].Height != 3 {
		t.Fatalf("unexpected dimensions %dx%d", res.Assets[0].Width, res.Assets[0].Height)
	}
	if res.Usage != nil {
		t.Fatalf("expected no usage, got %+v", res.Usage)
	}
}

func TestGenerateImagesGeminiReportsUsage(t *testing.T) {
	img := tinyPNG(t, 2, 2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash-image:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{
					{"text": "here you go"},
					{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(img)}},
				}},
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 12, "candidatesTokenCount": 1290, "totalTokenCount": 1302},
		})
	})

	res, err := client.GenerateImages(context.Background(), ImageRequest{Model: "gemini-2.5-flash-image", Prompt: "a cat"})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if len(res.Assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(res.Assets))
	}
	if res.Usage == nil || *res.Usage.TotalTokens != 1302 || *res.Usage.InputTokens != 12 {
		t.Fatalf("unexpected usage %+v", res.Usage)
	}
}

func TestAPIErrorKeepsBackendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"status":"NOT_FOUND","message":"models/veo-9 is not found for API version v1beta"}}`))
	})

	for i := 0; i < 5; i++ {
		_, err := client.StartVideo(context.Background(), VideoRequest{Model: "veo-9", Prompt: "x"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("call %d: expected APIError, got %v", i, err)
		}
		if apiErr.StatusCode != http.StatusNotFound || !strings.Contains(err.Error(), "is not found") {
			t.Fatalf("unexpected error %v", err)
		}
	}
}

func TestServerErrorsTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		if _, err := client.StartVideo(context.Background(), VideoRequest{Model: "veo-3.0-generate-001"}); err == nil {
			t.Fatalf("expected error")
		}
	}
	_, err := client.StartVideo(context.Background(), VideoRequest{Model: "veo-3.0-generate-001"})
	if err == nil || !strings.Contains(err.Error(), "backend unavailable") {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 backend calls, got %d", calls)
	}
}

func TestVideoLifecycle(t *testing.T) {
	video := []byte("mp4-bytes")
	polls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "models/veo-3.0-generate-001/operations/op1"})
		case strings.HasSuffix(r.URL.Path, ":fetchPredictOperation"):
			var body fetchOperationRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.OperationName != "models/veo-3.0-generate-001/operations/op1" {
				t.Errorf("unexpected operation %q", body.OperationName)
			}
			polls++
			if polls == 1 {
				_ = json.NewEncoder(w).Encode(map[string]any{"name": body.OperationName, "done": false})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": body.OperationName,
				"done": true,
				"response": map[string]any{"videos": []map[string]any{
					{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(video), "mimeType": "video/mp4"},
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	name, err := client.StartVideo(context.Background(), VideoRequest{Model: "veo-3.0-generate-001", Prompt: "waves", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("StartVideo error: %v", err)
	}
	op, err := client.VideoStatus(context.Background(), "veo-3.0-generate-001", name)
	if err != nil || op.Done {
		t.Fatalf("expected running operation, got %+v, %v", op, err)
	}
	op, err = client.VideoStatus(context.Background(), "veo-3.0-generate-001", name)
	if err != nil {
		t.Fatalf("VideoStatus error: %v", err)
	}
	if !op.Done || len(op.Assets) != 1 || string(op.Assets[0].Data) != "mp4-bytes" {
		t.Fatalf("unexpected operation %+v", op)
	}
}

func TestVideoStatusDownloadsGeneratedSamples(t *testing.T) {
	tests := []struct {
		name     string
		download http.HandlerFunc
		wantData string
	}{
		{
			name: "downloaded",
			download: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "video/mp4")
				_, _ = w.Write([]byte("sample-bytes"))
			},
			wantData: "sample-bytes",
		},
		{
			name: "download unavailable keeps uri",
			download: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("try later"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.URL.Path, "/files/") {
					tt.download(w, r)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"done": true,
					"response": map[string]any{"generateVideoResponse": map[string]any{
						"generatedSamples": []map[string]any{{"video": map[string]any{"uri": "files/abc:download"}}},
					}},
				})
			})
			op, err := client.VideoStatus(context.Background(), "veo-3.0-generate-001", "operations/x")
			if err != nil {
				t.Fatalf("VideoStatus error: %v", err)
			}
			if !op.Done || op.Error != "" || len(op.Assets) != 1 {
				t.Fatalf("unexpected operation %+v", op)
			}
			asset := op.Assets[0]
			if asset.URI != "files/abc:download" || asset.MimeType != "video/mp4" {
				t.Fatalf("unexpected asset %+v", asset)
			}
			if string(asset.Data) != tt.wantData {
				t.Fatalf("expected data %q, got %q", tt.wantData, asset.Data)
			}
		})
	}
}

func TestVideoStatusErrorsAndFilters(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]any
		want     string
	}{
		{
			name:     "operation error",
			response: map[string]any{"done": true, "error": map[string]any{"code": 3, "message": "Error: model veo-3.0 was not found"}},
			want:     "Error: model veo-3.0 was not found",
		},
		{
			name:     "filtered",
			response: map[string]any{"done": true, "response": map[string]any{"raiMediaFilteredReasons": []string{"unsafe content"}}},
			want:     "Video was blocked by safety filters: unsafe content",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.response)
			})
			op, err := client.VideoStatus(context.Background(), "veo-3.0-generate-001", "operations/x")
			if err != nil {
				t.Fatalf("VideoStatus error: %v", err)
			}
			if !op.Done || op.Error != tt.want {
				t.Fatalf("unexpected operation %+v", op)
			}
		})
	}
}

func TestSyntheticMode(t *testing.T) {
	client, err := NewClient(Options{SyntheticPolls: 2})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if !client.Synthetic() {
		t.Fatalf("expected synthetic client")
	}

	res, err := client.GenerateImages(context.Background(), ImageRequest{Model: "imagen-4.0-generate-001", Prompt: "x", SampleCount: 2, AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if len(res.Assets) != 2 || res.Assets[0].Width != 1920 || len(res.Assets[0].Data) == 0 {
		t.Fatalf("unexpected synthetic images %+v", res.Assets)
	}

	name, err := client.StartVideo(context.Background(), VideoRequest{Model: "veo-3.0-generate-001", Prompt: "x"})
	if err != nil {
		t.Fatalf("StartVideo error: %v", err)
	}
	if op, _ := client.VideoStatus(context.Background(), "veo-3.0-generate-001", name); op.Done {
		t.Fatalf("synthetic operation finished too early")
	}
	op, _ := client.VideoStatus(context.Background(), "veo-3.0-generate-001", name)
	if !op.Done || len(op.Assets) != 1 {
		t.Fatalf("expected finished synthetic operation, got %+v", op)
	}

	orphan, _ := client.VideoStatus(context.Background(), "veo-3.0-generate-001", syntheticOperationPrefix+"unknown")
	if !orphan.Done {
		t.Fatalf("unknown synthetic operation should complete")
	}
}
