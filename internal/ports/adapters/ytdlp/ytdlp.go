package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/forPelevin/clipsmith/internal/ports"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath}
}

// Inspect reads the source's metadata without downloading media.
func (a *Adapter) Inspect(ctx context.Context, url string) (ports.SourceInfo, error) {
	cmd := exec.CommandContext(ctx, a.bin,
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		"--no-playlist",
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return ports.SourceInfo{}, errors.Errorf("yt-dlp inspect failed: %s", detail)
	}
	return decodeInfo(stdout.Bytes())
}

// Download fetches url into dest as mp4. yt-dlp writes through its own
// .part file, so dest only appears once complete.
func (a *Adapter) Download(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, a.bin,
		"-f", "mp4/bestvideo+bestaudio",
		"--merge-output-format", "mp4",
		"-o", dest,
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		url,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		return errors.Errorf("yt-dlp download failed: %v\n%s", err, string(b))
	}
	return nil
}

func decodeInfo(b []byte) (ports.SourceInfo, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return ports.SourceInfo{}, errors.New("yt-dlp returned empty metadata")
	}
	var meta struct {
		Title    string `json:"title"`
		Uploader string `json:"uploader"`
		Channel  string `json:"channel"`
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return ports.SourceInfo{}, errors.Wrap(err, "decode yt-dlp metadata")
	}
	info := ports.SourceInfo{
		Title:    strings.TrimSpace(meta.Title),
		Uploader: strings.TrimSpace(meta.Uploader),
	}
	if info.Uploader == "" {
		info.Uploader = strings.TrimSpace(meta.Channel)
	}
	if info.Title == "" {
		return ports.SourceInfo{}, errors.New("yt-dlp metadata has no title")
	}
	return info, nil
}
