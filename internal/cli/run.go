package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipsmith/internal/config"
	"github.com/forPelevin/clipsmith/internal/pipeline"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/openrouter"
)

const runTimeout = 6 * time.Hour

func run(cmd *cobra.Command, source string) error {
	cfg, err := buildConfig(cmd, source)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	m := res.Manifest
	fmt.Fprintf(cmd.OutOrStdout(), "accepted=%d produced=%d reused=%d failed=%d\n", m.Accepted, m.Produced, m.Reused, m.Failed)
	fmt.Fprintln(cmd.OutOrStdout(), res.ManifestPath)
	return nil
}

// buildConfig merges, lowest to highest precedence: built-in defaults, the
// settings file, environment, and flags the user set explicitly.
func buildConfig(cmd *cobra.Command, source string) (pipeline.Config, error) {
	f := cmd.Flags()
	settingsPath, _ := f.GetString("config")
	settings, err := config.Load(settingsPath)
	if err != nil {
		return pipeline.Config{}, err
	}

	outDir, _ := f.GetString("out")
	minSec, _ := f.GetFloat64("min")
	maxSec, _ := f.GetFloat64("max")
	platforms, _ := f.GetStringSlice("platform")
	provider, _ := f.GetString("provider")
	model, _ := f.GetString("model")
	workers, _ := f.GetInt("workers")
	tags, _ := f.GetBool("tags")
	subs, _ := f.GetBool("subtitles")
	uploader, _ := f.GetString("uploader")
	quiet, _ := f.GetBool("quiet")

	if !f.Changed("min") && settings.MinSeconds > 0 {
		minSec = settings.MinSeconds
	}
	if !f.Changed("max") && settings.MaxSeconds > 0 {
		maxSec = settings.MaxSeconds
	}
	if !f.Changed("platform") && len(settings.Platforms) > 0 {
		platforms = settings.Platforms
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if model == "" {
		model = os.Getenv(strings.ToUpper(provider) + "_MODEL")
	}

	cfg := pipeline.Config{
		Source:   source,
		Uploader: uploader,
		OutDir:   outDir,

		MinClip:   secondsToDuration(minSec),
		MaxClip:   secondsToDuration(maxSec),
		Platforms: platforms,
		Workers:   workers,
		Tags:      tags,
		Subtitles: subs,

		ProposalPrompt: settings.ProposalPrompt,
		TitlePrompt:    settings.TitlePrompt,
		TagsPrompt:     settings.TagsPrompt,
		BannedWords:    settings.BannedWords,
		DefaultTags:    settings.DefaultTags,

		Provider: provider,
		Model:    model,

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:      os.Getenv("OPENROUTER_BASE_URL"),
		OpenRouterAllowedHosts: openrouter.ParseAllowedHosts(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		FFmpegPath:   getenvDefault("CLIPSMITH_FFMPEG", "ffmpeg"),
		YTDLPPath:    getenvDefault("CLIPSMITH_YTDLP", "yt-dlp"),
		WhisperBin:   getenvDefault("WHISPER_BIN", "whisper-cli"),
		WhisperModel: getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin"),

		Timeouts: pipeline.DefaultTimeouts(),
	}
	if !quiet {
		logger := log.New(cmd.ErrOrStderr(), "clipsmith: ", log.LstdFlags)
		cfg.Logf = logger.Printf
	}
	return cfg, nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
