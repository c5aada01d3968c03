package types

import "time"

type Transcript struct {
	Segments []Segment `json:"segments"`
}

// Segment is one timestamped piece of transcript text, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type VideoAsset struct {
	URL       string
	Title     string
	Uploader  string
	LocalPath string
}

// CutJob is a proposal that passed validation. Index is 1-based and follows
// acceptance order.
type CutJob struct {
	Index       int
	Start       time.Duration
	End         time.Duration
	Description string
	Platform    string
	TitleKey    string
}

func (j CutJob) Duration() time.Duration { return j.End - j.Start }

type ClipStatus string

const (
	ClipProduced ClipStatus = "produced"
	ClipReused   ClipStatus = "reused"
	ClipFailed   ClipStatus = "failed"
)

type Manifest struct {
	RunID       string             `json:"run_id"`
	Source      string             `json:"source"`
	Title       string             `json:"title"`
	Uploader    string             `json:"uploader"`
	GeneratedAt time.Time          `json:"generated_at"`
	Proposals   int                `json:"proposals"`
	Accepted    int                `json:"accepted"`
	Produced    int                `json:"produced"`
	Reused      int                `json:"reused"`
	Failed      int                `json:"failed"`
	Rejected    []ManifestRejected `json:"rejected,omitempty"`
	Clips       []ManifestClip     `json:"clips"`
}

type ManifestRejected struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

type ManifestClip struct {
	Index       int        `json:"index"`
	TitleKey    string     `json:"title_key"`
	Title       string     `json:"title"`
	Tags        []string   `json:"tags,omitempty"`
	StartSec    float64    `json:"start_sec"`
	EndSec      float64    `json:"end_sec"`
	Platform    string     `json:"platform"`
	Description string     `json:"description"`
	Media       string     `json:"media"`
	Text        string     `json:"text"`
	Subtitles   string     `json:"subtitles,omitempty"`
	Status      ClipStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
}
