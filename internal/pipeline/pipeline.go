package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipsmith/internal/domain/cuts"
	"github.com/forPelevin/clipsmith/internal/domain/enrich"
	"github.com/forPelevin/clipsmith/internal/ports"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/gemini"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/openai"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/openrouter"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipsmith/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/clipsmith/internal/usecase"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

type Config struct {
	// Source is an http(s) URL or a path to a local media file.
	Source   string
	Uploader string
	OutDir   string

	MinClip   time.Duration
	MaxClip   time.Duration
	Platforms []string
	Workers   int
	Tags      bool
	Subtitles bool

	ProposalPrompt string
	TitlePrompt    string
	TagsPrompt     string
	BannedWords    []string
	DefaultTags    []string

	Provider string
	Model    string

	GeminiAPIKey string

	OpenRouterAPIKey       string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	FFmpegPath   string
	YTDLPPath    string
	WhisperBin   string
	WhisperModel string

	Timeouts usecase.Timeouts
	Logf     func(format string, args ...any)
}

// DefaultTimeouts bounds every external call of a run.
func DefaultTimeouts() usecase.Timeouts {
	return usecase.Timeouts{
		Acquire:    time.Hour,
		Transcribe: 2 * time.Hour,
		Propose:    3 * time.Minute,
		Enrich:     90 * time.Second,
		Extract:    10 * time.Minute,
	}
}

// Validate rejects configurations that would fail part-way through a run.
// It performs no network or process calls.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source is empty")
	}
	if !IsURL(c.Source) {
		st, err := os.Stat(c.Source)
		if err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
		if !st.Mode().IsRegular() {
			return fmt.Errorf("source %s is not a regular file", c.Source)
		}
	}
	if err := c.policy().Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return errors.New("workers must be >= 1")
	}
	if c.WhisperModel == "" {
		return errors.New("whisper model path is required (set WHISPER_MODEL)")
	}
	if _, err := usecase.ParseProposalPrompt(c.ProposalPrompt); err != nil {
		return err
	}
	if _, err := enrich.New(nil, c.enrichOptions()); err != nil {
		return err
	}

	switch c.provider() {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for provider gemini (set it in .env)")
		}
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY is required for provider openrouter (set it in .env)")
		}
		return openrouter.ValidateBaseURL(c.OpenRouterBaseURL, c.OpenRouterAllowedHosts)
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for provider openai (set it in .env)")
		}
	default:
		return fmt.Errorf("unknown provider %q (want gemini, openrouter or openai)", c.Provider)
	}
	return nil
}

func Run(ctx context.Context, cfg Config) (usecase.Result, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	// adapters
	llm, err := newGenerator(ctx, cfg)
	if err != nil {
		return usecase.Result{}, err
	}
	deps := usecase.Deps{
		Acquirer: ytdlp.New(cfg.YTDLPPath),
		Video:    ffmpeg.New(cfg.FFmpegPath),
		ASR:      whispercpp.New(cfg.WhisperBin, cfg.WhisperModel),
		LLM:      llm,
	}
	uc := usecase.New(deps)

	runID := uuid.NewString()
	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "videos"
	}
	logf("run %s: provider=%s output=%s", runID, cfg.provider(), outDir)

	res, err := uc.Run(ctx, usecase.Input{
		Source:         cfg.Source,
		LocalFile:      !IsURL(cfg.Source),
		Uploader:       cfg.Uploader,
		OutRoot:        outDir,
		RunID:          runID,
		Policy:         cfg.policy(),
		ProposalPrompt: cfg.ProposalPrompt,
		Enrich:         cfg.enrichOptions(),
		WithTags:       cfg.Tags,
		Subtitles:      cfg.Subtitles,
		Workers:        cfg.Workers,
		Timeouts:       cfg.Timeouts,
		Logf:           logf,
	})
	if err != nil {
		return res, err
	}
	logf("manifest written (%d clips): %s", len(res.Manifest.Clips), res.ManifestPath)
	return res, nil
}

func newGenerator(ctx context.Context, cfg Config) (ports.TextGenerator, error) {
	switch cfg.provider() {
	case ProviderGemini:
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenRouter:
		return openrouter.New(cfg.OpenRouterAPIKey, cfg.Model, cfg.OpenRouterBaseURL), nil
	case ProviderOpenAI:
		o, err := openai.New(cfg.OpenAIAPIKey, cfg.Model, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func (c Config) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return ProviderGemini
	}
	return p
}

func (c Config) policy() cuts.Policy {
	return cuts.Policy{
		MinDuration:      c.MinClip,
		MaxDuration:      c.MaxClip,
		AllowedPlatforms: c.Platforms,
	}
}

func (c Config) enrichOptions() enrich.Options {
	return enrich.Options{
		TitlePrompt: c.TitlePrompt,
		TagsPrompt:  c.TagsPrompt,
		BannedWords: c.BannedWords,
		DefaultTags: c.DefaultTags,
		Timeout:     c.Timeouts.Enrich,
	}
}

// IsURL reports whether source should go through the acquirer rather than
// be read from disk.
func IsURL(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ensure adapters implement ports
var _ ports.Acquirer = (*ytdlp.Adapter)(nil)
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.TextGenerator = (*gemini.Adapter)(nil)
var _ ports.TextGenerator = (*openrouter.Adapter)(nil)
var _ ports.TextGenerator = (*openai.Adapter)(nil)
