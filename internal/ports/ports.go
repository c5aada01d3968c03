package ports

import (
	"context"
	"time"

	"github.com/forPelevin/clipsmith/internal/types"
)

// SourceInfo is what the acquisition collaborator knows about a URL before
// downloading it.
type SourceInfo struct {
	Title    string
	Uploader string
}

type Acquirer interface {
	Inspect(ctx context.Context, url string) (SourceInfo, error)
	Download(ctx context.Context, url, dest string) error
}

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	// CutCopy trims [start, start+length) from in into out without re-encoding.
	CutCopy(ctx context.Context, in string, start, length time.Duration, out string) error
	ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
