package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"genstudio/internal/domain"
)

// VideoRequest carries what :predictLongRunning needs.
type VideoRequest struct {
	Model            string
	Prompt           string
	NegativePrompt   string
	AspectRatio      string
	Resolution       string
	PersonGeneration string
	DurationSeconds  int
	SampleCount      int
	Seed             *int
	GenerateAudio    *bool
	EnhancePrompt    *bool
	RequestID        string
}

// VideoOperation is the state of a long-running video job.
type VideoOperation struct {
	Name   string
	Done   bool
	Error  string
	Assets []Asset
	Usage  *domain.Usage
}

type longRunningResponse struct {
	Name string `json:"name"`
}

type fetchOperationRequest struct {
	OperationName string `json:"operationName"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		Videos []struct {
			GcsURI             string `json:"gcsUri"`
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"videos"`
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video struct {
					URI      string `json:"uri"`
					MimeType string `json:"mimeType"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse,omitempty"`
		RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
	} `json:"response,omitempty"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

// StartVideo submits a video job and returns its operation name.
func (c *Client) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Synthetic() {
		return c.startSyntheticVideo(req), nil
	}
	payload := predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			SampleCount:      req.SampleCount,
			AspectRatio:      req.AspectRatio,
			NegativePrompt:   req.NegativePrompt,
			PersonGeneration: req.PersonGeneration,
			Seed:             req.Seed,
			EnhancePrompt:    req.EnhancePrompt,
			DurationSeconds:  req.DurationSeconds,
			GenerateAudio:    req.GenerateAudio,
			Resolution:       req.Resolution,
		},
	}
	var resp longRunningResponse
	if err := c.invoke(ctx, http.MethodPost, modelPath(req.Model, "predictLongRunning"), payload, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", errors.New("backend returned no operation name")
	}
	c.logger.Info().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Str("operation", resp.Name).
		Msg("genai: video operation started")
	return resp.Name, nil
}

// VideoStatus fetches the state of operation name started for model.
func (c *Client) VideoStatus(ctx context.Context, model, name string) (*VideoOperation, error) {
	if isSyntheticOperation(name) {
		return c.syntheticVideoStatus(name), nil
	}
	var resp operationResponse
	if err := c.invoke(ctx, http.MethodPost, modelPath(model, "fetchPredictOperation"), fetchOperationRequest{OperationName: name}, &resp); err != nil {
		return nil, err
	}

	op := &VideoOperation{Name: name, Done: resp.Done, Usage: resp.UsageMetadata.toUsage()}
	if !resp.Done {
		return op, nil
	}
	if resp.Error != nil && resp.Error.Message != "" {
		op.Error = resp.Error.Message
		return op, nil
	}
	if resp.Response == nil {
		return op, nil
	}

	var filtered []string
	filtered = append(filtered, resp.Response.RAIMediaFilteredReasons...)
	for _, v := range resp.Response.Videos {
		asset := Asset{URI: v.GcsURI, MimeType: firstNonEmpty(v.MimeType, "video/mp4")}
		if v.BytesBase64Encoded != "" {
			data, err := base64.StdEncoding.DecodeString(v.BytesBase64Encoded)
			if err != nil {
				return nil, fmt.Errorf("decode video: %w", err)
			}
			asset.Data = data
		}
		op.Assets = append(op.Assets, asset)
	}
	if gvr := resp.Response.GenerateVideoResponse; gvr != nil {
		filtered = append(filtered, gvr.RAIMediaFilteredReasons...)
		for _, s := range gvr.GeneratedSamples {
			if s.Video.URI == "" {
				continue
			}
			op.Assets = append(op.Assets, c.fetchVideo(ctx, name, s.Video.URI, s.Video.MimeType))
		}
	}
	if len(op.Assets) == 0 && len(filtered) > 0 {
		op.Error = "Video was blocked by safety filters: " + strings.Join(filtered, "; ")
	}
	return op, nil
}

// fetchVideo downloads a finished sample. A failed download keeps the
// location so the operation still completes with a remote reference.
func (c *Client) fetchVideo(ctx context.Context, operation, uri, mime string) Asset {
	remote := Asset{URI: uri, MimeType: firstNonEmpty(mime, "video/mp4")}
	if strings.HasPrefix(uri, "gs://") {
		return remote
	}
	data, contentType, err := c.downloadFile(ctx, uri)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("operation", operation).
			Str("uri", uri).
			Msg("genai: video download failed, keeping remote uri")
		return remote
	}
	return Asset{URI: uri, MimeType: firstNonEmpty(mime, contentType, "video/mp4"), Data: data}
}
