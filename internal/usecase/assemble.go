package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/clipsmith/internal/domain/cuts"
	"github.com/forPelevin/clipsmith/internal/domain/subtitles"
	"github.com/forPelevin/clipsmith/internal/ports"
	"github.com/forPelevin/clipsmith/internal/types"
)

// Assembler turns an enriched CutJob into its media and description files
// inside Dir. It is safe for concurrent use across distinct jobs.
type Assembler struct {
	Video     ports.VideoTool
	Dir       string
	Asset     types.VideoAsset
	Subtitles bool
	Timeout   time.Duration
	Logf      func(format string, args ...any)
}

// Clip is everything the assembler needs for one job. Reextract replaces
// existing media instead of keeping it.
type Clip struct {
	Job       types.CutJob
	Title     string
	Tags      []string
	Segments  []types.Segment
	Reextract bool
}

// Artifact names the files written for a clip, relative to Dir.
type Artifact struct {
	Slug        string
	Media       string
	Description string
	Subtitles   string
	Extracted   bool
}

func (a *Assembler) Assemble(ctx context.Context, c Clip) (Artifact, error) {
	logf := a.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	slug := cuts.Slugify(fmt.Sprintf("%d %s", c.Job.Index, c.Title))
	art := Artifact{
		Slug:        slug,
		Media:       slug + ".mp4",
		Description: slug + ".txt",
	}
	mediaPath := filepath.Join(a.Dir, art.Media)

	if fileExists(mediaPath) && !c.Reextract {
		logf("clip %d: %s exists, skipping extraction", c.Job.Index, art.Media)
	} else {
		if err := a.extract(ctx, c.Job, mediaPath); err != nil {
			return Artifact{}, err
		}
		art.Extracted = true
		logf("clip %d: extracted %s (%.1fs -> %.1fs)", c.Job.Index, art.Media, c.Job.Start.Seconds(), c.Job.End.Seconds())
	}

	if err := os.WriteFile(filepath.Join(a.Dir, art.Description), []byte(a.description(c)), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write description: %w", err)
	}
	if a.Subtitles {
		art.Subtitles = slug + ".ass"
		ass := subtitles.RenderClipASS(c.Segments, c.Job.Start, c.Job.End)
		if err := os.WriteFile(filepath.Join(a.Dir, art.Subtitles), []byte(ass), 0o644); err != nil {
			return Artifact{}, fmt.Errorf("write subtitles: %w", err)
		}
	}
	return art, nil
}

// extract cuts into a .part file and renames it once the collaborator has
// produced a non-empty file, so mediaPath never holds a partial clip.
func (a *Assembler) extract(ctx context.Context, job types.CutJob, mediaPath string) error {
	part := strings.TrimSuffix(mediaPath, ".mp4") + ".part.mp4"
	_ = os.Remove(part)

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	if err := a.Video.CutCopy(ctx, a.Asset.LocalPath, job.Start, job.Duration(), part); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("extract: %w", err)
	}
	if !fileExists(part) {
		_ = os.Remove(part)
		return errors.New("extract: collaborator produced no output")
	}
	if err := os.Rename(part, mediaPath); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("finalize clip: %w", err)
	}
	return nil
}

func (a *Assembler) description(c Clip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d - %s\n", c.Job.Index, strings.ToLower(strings.TrimSpace(c.Title)))
	b.WriteString(strings.TrimSpace(c.Job.Description))
	b.WriteString("\n\nSource channel: ")
	b.WriteString(a.Asset.Uploader)
	b.WriteString("\n")
	if len(c.Tags) > 0 {
		hashtags := make([]string, 0, len(c.Tags))
		for _, t := range c.Tags {
			hashtags = append(hashtags, "#"+strings.Join(strings.Fields(t), ""))
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(hashtags, " "))
		b.WriteString("\n")
	}
	return b.String()
}
