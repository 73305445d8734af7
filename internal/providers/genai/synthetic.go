package genai

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"time"
)

const syntheticOperationPrefix = "synthetic/operations/"

type syntheticOperation struct {
	checks int
}

func isSyntheticOperation(name string) bool {
	return strings.HasPrefix(name, syntheticOperationPrefix)
}

func (c *Client) syntheticImages(req ImageRequest) *ImageResult {
	quantity := clampQuantity(req.SampleCount)
	width, height := normalizeAspect(req.AspectRatio)
	result := &ImageResult{Assets: make([]Asset, quantity)}
	for i := 0; i < quantity; i++ {
		seed := deterministicSeed(req.RequestID, req.Prompt, req.Model, i)
		result.Assets[i] = Asset{
			MimeType: "image/png",
			Width:    width,
			Height:   height,
			Data:     renderSyntheticImage(width, height, seed),
		}
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Int("quantity", quantity).
		Msg("genai: generated synthetic image assets")
	return result
}

func (c *Client) startSyntheticVideo(req VideoRequest) string {
	name := syntheticOperationPrefix + deterministicSeed(req.RequestID, req.Prompt, req.Model, time.Now().UnixNano())
	c.mu.Lock()
	c.synthetic[name] = &syntheticOperation{}
	c.mu.Unlock()

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("operation", name).
		Msg("genai: started synthetic video operation")
	return name
}

// syntheticVideoStatus completes an operation after the configured number of
// checks. Operations this process does not know, for example ones resumed
// after a restart, complete on the first check.
func (c *Client) syntheticVideoStatus(name string) *VideoOperation {
	c.mu.Lock()
	op, known := c.synthetic[name]
	done := true
	if known {
		op.checks++
		done = op.checks >= c.syntheticPolls
		if done {
			delete(c.synthetic, name)
		}
	}
	c.mu.Unlock()

	if !done {
		return &VideoOperation{Name: name}
	}
	seed := strings.TrimPrefix(name, syntheticOperationPrefix)
	return &VideoOperation{
		Name: name,
		Done: true,
		Assets: []Asset{{
			MimeType: "video/mp4",
			Data:     renderSyntheticVideo(seed),
		}},
	}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func renderSyntheticVideo(seed string) []byte {
	lines := []string{
		"Synthetic video placeholder",
		fmt.Sprintf("Seed: %s", seed),
		"Rendered bytes are stored here once a backend key is configured.",
	}
	return []byte(strings.Join(lines, "\n"))
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:3":
		return 1280, 960
	case "3:4":
		return 960, 1280
	default:
		return 1024, 1024
	}
}
