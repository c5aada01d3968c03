package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/clipsmith/internal/domain/cuts"
	"github.com/forPelevin/clipsmith/internal/domain/enrich"
	"github.com/forPelevin/clipsmith/internal/domain/proposals"
	"github.com/forPelevin/clipsmith/internal/domain/transcript"
	"github.com/forPelevin/clipsmith/internal/ports"
	"github.com/forPelevin/clipsmith/internal/types"
)

type Deps struct {
	Acquirer ports.Acquirer
	Video    ports.VideoTool
	ASR      ports.ASR
	LLM      ports.TextGenerator
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

// Timeouts bound each external call. Zero leaves the call bounded only by
// the run context.
type Timeouts struct {
	Acquire    time.Duration
	Transcribe time.Duration
	Propose    time.Duration
	Enrich     time.Duration
	Extract    time.Duration
}

type Input struct {
	// Source is a URL handed to the acquirer, or a local media file when
	// LocalFile is set.
	Source    string
	LocalFile bool
	// Uploader overrides the acquirer's uploader; for local files it is the
	// only source of provenance.
	Uploader string
	OutRoot  string
	RunID    string

	Policy         cuts.Policy
	ProposalPrompt string
	Enrich         enrich.Options
	WithTags       bool
	Subtitles      bool
	Workers        int
	Timeouts       Timeouts

	Logf func(format string, args ...any)
}

type Result struct {
	Manifest     types.Manifest
	VideoDir     string
	ManifestPath string
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if err := in.Policy.Validate(); err != nil {
		return Result{}, err
	}
	promptTmpl, err := ParseProposalPrompt(in.ProposalPrompt)
	if err != nil {
		return Result{}, err
	}
	eo := in.Enrich
	eo.Logf = logf
	if eo.Timeout == 0 {
		eo.Timeout = in.Timeouts.Enrich
	}
	enricher, err := enrich.New(u.d.LLM, eo)
	if err != nil {
		return Result{}, err
	}

	asset, dir, err := u.acquire(ctx, in, logf)
	if err != nil {
		return Result{}, err
	}

	policy := in.Policy
	policy.SourceDuration = u.sourceDuration(ctx, asset.LocalPath, in.Timeouts.Extract, logf)

	tr, err := u.loadOrTranscribe(ctx, asset.LocalPath, dir, in.Timeouts.Transcribe, logf)
	if err != nil {
		return Result{}, err
	}
	ix := transcript.NewIndex(tr.Segments)
	logf("transcript: %d segments", ix.Len())

	props := u.propose(ctx, promptTmpl, policy, ix, in.Timeouts.Propose, logf)
	jobs, rejected := cuts.Validate(props, policy)
	for _, r := range rejected {
		logf("proposal %d dropped: %s", r.Position, r.Reason)
	}
	if len(jobs) == 0 {
		logf("warning: no valid cuts; zero clips will be produced")
	} else {
		logf("%d of %d proposals accepted", len(jobs), len(props))
	}

	manifestPath := filepath.Join(dir, manifestFile)
	prior := priorClips{}
	if m, err := ReadManifest(manifestPath); err == nil {
		prior = newPriorClips(m)
	} else if !errors.Is(err, os.ErrNotExist) {
		logf("ignoring previous manifest: %v", err)
	}

	asm := &Assembler{
		Video:     u.d.Video,
		Dir:       dir,
		Asset:     asset,
		Subtitles: in.Subtitles,
		Timeout:   in.Timeouts.Extract,
		Logf:      logf,
	}
	workers := in.Workers
	if workers < 1 {
		workers = 1
	}
	clips := make([]types.ManifestClip, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			clips[i] = u.clip(ctx, job, ix, enricher, asm, prior, in.WithTags, logf)
			return nil
		})
	}
	_ = g.Wait()

	m := types.Manifest{
		RunID:       in.RunID,
		Source:      in.Source,
		Title:       asset.Title,
		Uploader:    asset.Uploader,
		GeneratedAt: time.Now().UTC(),
		Proposals:   len(props),
		Accepted:    len(jobs),
		Clips:       clips,
	}
	for _, r := range rejected {
		m.Rejected = append(m.Rejected, types.ManifestRejected{Position: r.Position, Reason: r.Reason})
	}
	for _, c := range clips {
		switch c.Status {
		case types.ClipProduced:
			m.Produced++
		case types.ClipReused:
			m.Reused++
		case types.ClipFailed:
			m.Failed++
		}
	}
	if err := writeManifest(manifestPath, m); err != nil {
		return Result{}, err
	}
	logf("accepted=%d produced=%d reused=%d failed=%d", m.Accepted, m.Produced, m.Reused, m.Failed)

	res := Result{Manifest: m, VideoDir: dir, ManifestPath: manifestPath}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("run interrupted: %w", err)
	}
	return res, nil
}

// acquire resolves the source into a local media file inside its video
// folder. A URL whose target file already exists is not downloaded again.
func (u Usecase) acquire(ctx context.Context, in Input, logf func(string, ...any)) (types.VideoAsset, string, error) {
	if in.LocalFile {
		abs, err := filepath.Abs(in.Source)
		if err != nil {
			return types.VideoAsset{}, "", err
		}
		if !fileExists(abs) {
			return types.VideoAsset{}, "", fmt.Errorf("source %s is not a readable, non-empty file", abs)
		}
		title := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
		asset := types.VideoAsset{URL: in.Source, Title: title, Uploader: orDefault(in.Uploader, "unknown"), LocalPath: abs}
		dir := filepath.Join(in.OutRoot, folderName(title))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.VideoAsset{}, "", err
		}
		logf("using local file %s", abs)
		return asset, dir, nil
	}

	actx, cancel := withTimeout(ctx, in.Timeouts.Acquire)
	defer cancel()

	logf("inspecting %s", in.Source)
	info, err := u.d.Acquirer.Inspect(actx, in.Source)
	if err != nil {
		return types.VideoAsset{}, "", fmt.Errorf("acquire: %w", err)
	}
	name := folderName(info.Title)
	dir := filepath.Join(in.OutRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.VideoAsset{}, "", err
	}
	asset := types.VideoAsset{
		URL:       in.Source,
		Title:     info.Title,
		Uploader:  orDefault(in.Uploader, orDefault(info.Uploader, "unknown")),
		LocalPath: filepath.Join(dir, name+".mp4"),
	}
	if fileExists(asset.LocalPath) {
		logf("video already downloaded: %s", asset.LocalPath)
		return asset, dir, nil
	}
	logf("downloading to %s", asset.LocalPath)
	if err := u.d.Acquirer.Download(actx, in.Source, asset.LocalPath); err != nil {
		return types.VideoAsset{}, "", fmt.Errorf("acquire: %w", err)
	}
	if !fileExists(asset.LocalPath) {
		return types.VideoAsset{}, "", fmt.Errorf("acquire: download produced no file at %s", asset.LocalPath)
	}
	return asset, dir, nil
}

func (u Usecase) sourceDuration(ctx context.Context, path string, timeout time.Duration, logf func(string, ...any)) time.Duration {
	pctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	d, err := u.d.Video.ProbeDuration(pctx, path)
	if err != nil || d <= 0 {
		logf("source duration unknown, end-of-video check disabled: %v", err)
		return 0
	}
	logf("source duration: %s", d.Round(time.Second))
	return d
}

// loadOrTranscribe loads the persisted transcript or produces and persists it.
func (u Usecase) loadOrTranscribe(ctx context.Context, video, dir string, timeout time.Duration, logf func(string, ...any)) (types.Transcript, error) {
	path := filepath.Join(dir, transcriptFile)
	if _, err := os.Stat(path); err == nil {
		logf("transcript exists, loading %s", path)
		return loadTranscript(path)
	}

	tctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	cache := filepath.Join(dir, workDir)
	if err := os.MkdirAll(cache, 0o755); err != nil {
		return types.Transcript{}, err
	}
	wav := filepath.Join(cache, "audio.wav")
	logf("extracting audio")
	if err := u.d.Video.ExtractAudioMono16k(tctx, video, wav); err != nil {
		return types.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	logf("transcribing")
	tr, err := u.d.ASR.Transcribe(tctx, wav, cache)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	if err := saveTranscript(path, tr); err != nil {
		return types.Transcript{}, err
	}
	_ = os.RemoveAll(cache)
	return tr, nil
}

// propose asks the text generator for cut proposals. Every failure here is
// recoverable and yields zero proposals.
func (u Usecase) propose(
	ctx context.Context,
	tmpl *template.Template,
	p cuts.Policy,
	ix *transcript.Index,
	timeout time.Duration,
	logf func(string, ...any),
) []proposals.Proposal {
	prompt, err := renderProposalPrompt(tmpl, p, ix)
	if err != nil {
		logf("warning: %v", err)
		return nil
	}
	pctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	logf("requesting cut proposals")
	raw, err := u.d.LLM.Generate(pctx, prompt)
	if err != nil {
		logf("warning: proposal generation failed: %v", err)
		return nil
	}
	props, err := proposals.Parse(raw)
	if err != nil {
		var pe *proposals.ParseError
		if errors.As(err, &pe) {
			logf("warning: %v; raw output: %q", err, truncate(pe.Raw, 500))
		} else {
			logf("warning: %v", err)
		}
		return nil
	}
	logf("%d proposals received", len(props))
	return props
}

// clip enriches and assembles one job. Failures are recorded on the
// returned entry and never stop other jobs.
func (u Usecase) clip(
	ctx context.Context,
	job types.CutJob,
	ix *transcript.Index,
	enricher *enrich.Enricher,
	asm *Assembler,
	prior priorClips,
	withTags bool,
	logf func(string, ...any),
) types.ManifestClip {
	text := ix.TextCovering(job.Start, job.End)
	mc := types.ManifestClip{
		Index:       job.Index,
		TitleKey:    job.TitleKey,
		StartSec:    job.Start.Seconds(),
		EndSec:      job.End.Seconds(),
		Platform:    job.Platform,
		Description: job.Description,
		Text:        text,
	}

	recorded, reuse, stale := prior.lookup(job, asm.Dir)
	if stale {
		logf("clip %d: recorded range %.1fs -> %.1fs changed, extracting again", job.Index, recorded.StartSec, recorded.EndSec)
	}
	if reuse {
		mc.Title, mc.Tags = recorded.Title, recorded.Tags
		logf("clip %d: reusing recorded title %q", job.Index, mc.Title)
	} else {
		res := enricher.Enrich(ctx, job, text, withTags)
		mc.Title, mc.Tags = res.Title, res.Tags
	}

	art, err := asm.Assemble(ctx, Clip{
		Job:       job,
		Title:     mc.Title,
		Tags:      mc.Tags,
		Segments:  ix.SegmentsCovering(job.Start, job.End),
		Reextract: stale,
	})
	if err != nil {
		mc.Status = types.ClipFailed
		mc.Error = err.Error()
		logf("clip %d failed: %v", job.Index, err)
		return mc
	}
	mc.Media = art.Media
	mc.Subtitles = art.Subtitles
	if art.Extracted {
		mc.Status = types.ClipProduced
	} else {
		mc.Status = types.ClipReused
	}
	return mc
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
