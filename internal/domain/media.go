package domain

// MediaType enumerates the kinds of artifacts the studio produces.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool {
	return t == MediaTypeImage || t == MediaTypeVideo
}

// Artifact describes one generated output. Exactly one of StorageRef or Data
// is normally set: providers that return inline bytes fill Data and the media
// adapter replaces it with a StorageRef once persisted.
type Artifact struct {
	StorageRef string  `json:"storageRef"`
	URL        string  `json:"url,omitempty"`
	Format     string  `json:"format"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Data       []byte  `json:"-"`
}

// Usage holds token counters reported by the backend. Nil fields were not
// reported.
type Usage struct {
	TotalTokens  *int
	InputTokens  *int
	OutputTokens *int
}

// Empty reports whether no counter was reported.
func (u *Usage) Empty() bool {
	return u == nil || (u.TotalTokens == nil && u.InputTokens == nil && u.OutputTokens == nil)
}
