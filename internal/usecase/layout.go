package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/clipsmith/internal/types"
)

const (
	transcriptFile = "transcript.json"
	manifestFile   = "manifest.json"
	workDir        = ".work"
)

var unsafeFolderRE = regexp.MustCompile(`[\\/*?:"<>|]`)

// folderName turns a video title into the per-video directory name. It keeps
// the title recognizable and only replaces characters that are unsafe in
// paths.
func folderName(title string) string {
	s := unsafeFolderRE.ReplaceAllString(strings.TrimSpace(title), "_")
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsSpace(r):
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "video"
	}
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120])
	}
	return s
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// writeFileAtomic replaces path with b through a sibling temp file.
func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func loadTranscript(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, err
	}
	var tr types.Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return tr, nil
}

func saveTranscript(path string, tr types.Transcript) error {
	b, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return writeFileAtomic(path, b)
}

// ReadManifest loads a manifest written by a previous run.
func ReadManifest(path string) (types.Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Manifest{}, err
	}
	var m types.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return types.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

func writeManifest(path string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(path, b)
}

// priorClips indexes the clips of a previous manifest by (index, title_key).
type priorClips map[string]types.ManifestClip

func newPriorClips(m types.Manifest) priorClips {
	p := make(priorClips, len(m.Clips))
	for _, c := range m.Clips {
		if c.Status == types.ClipFailed || c.Media == "" || strings.TrimSpace(c.Title) == "" {
			continue
		}
		p[priorKey(c.Index, c.TitleKey)] = c
	}
	return p
}

// lookup returns the recorded clip for job when its media is still on disk.
// stale reports a recorded clip whose time range differs from job's, so its
// media no longer matches.
func (p priorClips) lookup(job types.CutJob, dir string) (c types.ManifestClip, reuse, stale bool) {
	c, ok := p[priorKey(job.Index, job.TitleKey)]
	if !ok || !fileExists(filepath.Join(dir, filepath.FromSlash(c.Media))) {
		return types.ManifestClip{}, false, false
	}
	if !sameSecond(c.StartSec, job.Start.Seconds()) || !sameSecond(c.EndSec, job.End.Seconds()) {
		return c, false, true
	}
	return c, true, false
}

func sameSecond(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func priorKey(index int, titleKey string) string {
	return fmt.Sprintf("%d|%s", index, titleKey)
}
