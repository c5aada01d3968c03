//go:build integration

package itest

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/clipsmith/internal/pipeline"
	"github.com/forPelevin/clipsmith/internal/types"
)

// TestE2E runs the real collaborators against a synthetic talk. It needs
// espeak-ng, ffmpeg, whisper.cpp and a key for the selected provider.
func TestE2E(t *testing.T) {
	provider := os.Getenv("CLIPSMITH_ITEST_PROVIDER")
	if provider == "" {
		provider = pipeline.ProviderGemini
	}
	keyEnv := strings.ToUpper(provider) + "_API_KEY"
	if os.Getenv(keyEnv) == "" {
		t.Fatalf("%s is required for itest", keyEnv)
	}

	tmp := t.TempDir()
	in := filepath.Join(tmp, "Synthetic Talk.mp4")
	makeTalkFixture(t, tmp, in)

	outDir := filepath.Join(tmp, "videos")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cfg := pipeline.Config{
		Source:           in,
		Uploader:         "itest",
		OutDir:           outDir,
		MinClip:          10 * time.Second,
		MaxClip:          40 * time.Second,
		Platforms:        []string{"shorts"},
		Workers:          2,
		Tags:             true,
		Subtitles:        true,
		Provider:         provider,
		Model:            os.Getenv(strings.ToUpper(provider) + "_MODEL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		FFmpegPath:       "ffmpeg",
		YTDLPPath:        "yt-dlp",
		WhisperBin:       envOr("WHISPER_BIN", "whisper-cli"),
		WhisperModel:     envOr("WHISPER_MODEL", ".cache/models/ggml-base.bin"),
		Timeouts:         pipeline.DefaultTimeouts(),
		Logf:             t.Logf,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.VideoDir, "transcript.json")); err != nil {
		t.Fatalf("missing transcript: %v", err)
	}
	for _, c := range res.Manifest.Clips {
		if c.Status == types.ClipFailed {
			t.Fatalf("clip %d failed: %s", c.Index, c.Error)
		}
		got, err := probeDurationSeconds(filepath.Join(res.VideoDir, c.Media))
		if err != nil {
			t.Fatal(err)
		}
		// copy-based cuts snap to keyframes
		if want := c.EndSec - c.StartSec; math.Abs(got-want) > 3 {
			t.Fatalf("clip %d duration %.2fs, want ~%.2fs", c.Index, got, want)
		}
	}

	// A second run must not extract anything again.
	res2, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res2.Manifest.Produced != 0 {
		t.Fatalf("second run produced %d clips, want 0", res2.Manifest.Produced)
	}
}

func makeTalkFixture(t *testing.T, dir, out string) {
	t.Helper()

	wav := filepath.Join(dir, "speech.wav")
	text := "Today we talk about bread. Good bread needs time, flour, water and salt. " +
		"Knead the dough and let it rest overnight. " +
		"Now a different subject: running. Start slow, keep a steady pace, and rest one day a week. " +
		"Finally, sleep. Adults need about eight hours, and a dark room helps a lot."
	cmd := exec.Command("espeak-ng", "-s", "120", "-w", wav, text)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:d=60",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-g", "25",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
