package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"strings"

	"genstudio/internal/domain"
)

// ImageRequest carries what the image endpoints need.
type ImageRequest struct {
	Model            string
	Prompt           string
	NegativePrompt   string
	AspectRatio      string
	SampleCount      int
	Seed             *int
	EnhancePrompt    *bool
	PersonGeneration string
	RequestID        string
}

// ImageResult holds generated images and any token usage reported with them.
type ImageResult struct {
	Assets []Asset
	Usage  *domain.Usage
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount      int    `json:"sampleCount,omitempty"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	NegativePrompt   string `json:"negativePrompt,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty"`
	Seed             *int   `json:"seed,omitempty"`
	EnhancePrompt    *bool  `json:"enhancePrompt,omitempty"`
	DurationSeconds  int    `json:"durationSeconds,omitempty"`
	GenerateAudio    *bool  `json:"generateAudio,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
		RAIFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int                `json:"candidateCount,omitempty"`
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
	Seed               *int               `json:"seed,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

// GenerateImages produces images synchronously. Imagen models use :predict;
// Gemini image models use :generateContent with an image response modality.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Synthetic() {
		return c.syntheticImages(req), nil
	}
	if isGeminiModel(req.Model) {
		return c.generateContentImages(ctx, req)
	}
	return c.predictImages(ctx, req)
}

func (c *Client) predictImages(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	payload := predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			SampleCount:      clampQuantity(req.SampleCount),
			AspectRatio:      req.AspectRatio,
			NegativePrompt:   req.NegativePrompt,
			PersonGeneration: req.PersonGeneration,
			Seed:             req.Seed,
			EnhancePrompt:    req.EnhancePrompt,
		},
	}
	var resp predictResponse
	if err := c.invoke(ctx, http.MethodPost, modelPath(req.Model, "predict"), payload, &resp); err != nil {
		return nil, err
	}

	result := &ImageResult{Usage: resp.UsageMetadata.toUsage()}
	var filtered []string
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded == "" {
			if p.RAIFilteredReason != "" {
				filtered = append(filtered, p.RAIFilteredReason)
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
		result.Assets = append(result.Assets, imageAsset(data, p.MimeType))
	}
	if len(result.Assets) == 0 && len(filtered) > 0 {
		return nil, fmt.Errorf("all images were filtered: %s", strings.Join(filtered, "; "))
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Int("quantity", len(result.Assets)).
		Msg("genai: generated remote image assets")
	return result, nil
}

func (c *Client) generateContentImages(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &geminiImageConfig{AspectRatio: req.AspectRatio},
			Seed:               req.Seed,
		},
	}
	var resp geminiGenerateContentResponse
	if err := c.invoke(ctx, http.MethodPost, modelPath(req.Model, "generateContent"), payload, &resp); err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}

	result := &ImageResult{Usage: resp.UsageMetadata.toUsage()}
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodePart(ctx, part)
			if err != nil {
				return nil, err
			}
			if len(asset.Data) == 0 {
				continue
			}
			result.Assets = append(result.Assets, asset)
		}
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Int("quantity", len(result.Assets)).
		Msg("genai: generated remote image assets")
	return result, nil
}

func (c *Client) decodePart(ctx context.Context, part geminiPart) (Asset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return Asset{}, fmt.Errorf("decode inline data: %w", err)
		}
		return imageAsset(data, part.InlineData.MimeType), nil
	}
	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return Asset{}, err
		}
		asset := imageAsset(data, firstNonEmpty(part.FileData.MimeType, mime))
		asset.URI = part.FileData.FileURI
		return asset, nil
	}
	return Asset{}, nil
}

func imageAsset(data []byte, mime string) Asset {
	if mime == "" {
		mime = "image/png"
	}
	w, h := decodeImageDimensions(data)
	return Asset{MimeType: mime, Width: w, Height: h, Data: data}
}

func isGeminiModel(model string) bool {
	return strings.HasPrefix(strings.TrimPrefix(model, "models/"), "gemini-")
}

func modelPath(model, method string) string {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	return fmt.Sprintf("/models/%s:%s", url.PathEscape(model), method)
}

func clampQuantity(quantity int) int {
	if quantity <= 0 {
		return 1
	}
	if quantity > 4 {
		return 4
	}
	return quantity
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
