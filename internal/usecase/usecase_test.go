package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/clipsmith/internal/domain/cuts"
	"github.com/forPelevin/clipsmith/internal/domain/transcript"
	"github.com/forPelevin/clipsmith/internal/ports"
	"github.com/forPelevin/clipsmith/internal/types"
)

const threeProposals = `Here you go:
[
  {"start": 0, "end": 50, "description": "Alpha topic", "platform": "shorts"},
  {"start": 40, "end": 80, "description": "Beta topic", "platform": "shorts"},
  {"start": 200, "end": 260, "description": "Gamma topic", "platform": "shorts"}
]`

func TestRun_ProducesClipsThenReusesOnRerun(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	f := newFakes(threeProposals)
	uc := New(f.deps())
	in := testInput(out)

	res, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	m := res.Manifest
	if m.Accepted != 3 || m.Produced != 3 || m.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	for i, c := range m.Clips {
		if c.Index != i+1 {
			t.Fatalf("clip %d has index %d", i, c.Index)
		}
		if c.Status != types.ClipProduced {
			t.Fatalf("clip %d status=%s", c.Index, c.Status)
		}
		if !fileExists(filepath.Join(res.VideoDir, c.Media)) {
			t.Fatalf("missing media %s", c.Media)
		}
	}
	if res.VideoDir != filepath.Join(out, "My_Long_Talk") {
		t.Fatalf("video dir=%s", res.VideoDir)
	}
	if !fileExists(filepath.Join(res.VideoDir, transcriptFile)) {
		t.Fatalf("transcript not persisted")
	}
	if _, err := os.Stat(filepath.Join(res.VideoDir, workDir)); !os.IsNotExist(err) {
		t.Fatalf("work dir should be removed, stat err=%v", err)
	}
	desc, err := os.ReadFile(filepath.Join(res.VideoDir, strings.TrimSuffix(m.Clips[0].Media, ".mp4")+".txt"))
	if err != nil {
		t.Fatalf("read description: %v", err)
	}
	if !strings.HasPrefix(string(desc), "1 - sharp title 1\nAlpha topic\n\nSource channel: Some Channel\n") {
		t.Fatalf("unexpected description:\n%s", desc)
	}

	firstTitles := f.llm.titleCalls()
	f.resetCounts()

	res2, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.acq.downloads != 0 || f.asr.calls != 0 || f.video.audioCalls != 0 || f.video.cutCalls() != 0 {
		t.Fatalf("second run redid work: downloads=%d asr=%d audio=%d cuts=%d",
			f.acq.downloads, f.asr.calls, f.video.audioCalls, f.video.cutCalls())
	}
	if f.llm.titleCalls() != firstTitles {
		t.Fatalf("second run called enrichment again")
	}
	m2 := res2.Manifest
	if m2.Reused != 3 || m2.Produced != 0 {
		t.Fatalf("unexpected rerun counts: %+v", m2)
	}
	for i := range m2.Clips {
		if m2.Clips[i].Title != m.Clips[i].Title || m2.Clips[i].Media != m.Clips[i].Media {
			t.Fatalf("clip %d drifted: %+v vs %+v", i+1, m2.Clips[i], m.Clips[i])
		}
	}
}

func TestRun_RerunExtractsAgainWhenRangeMoved(t *testing.T) {
	t.Parallel()

	f := newFakes(threeProposals)
	uc := New(f.deps())
	in := testInput(t.TempDir())
	if _, err := uc.Run(context.Background(), in); err != nil {
		t.Fatalf("first run: %v", err)
	}
	f.resetCounts()
	f.llm.proposals = strings.Replace(threeProposals, `"start": 0, "end": 50`, `"start": 100, "end": 150`, 1)

	res, err := uc.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	m := res.Manifest
	if m.Produced != 1 || m.Reused != 2 || f.video.cutCalls() != 1 {
		t.Fatalf("unexpected rerun counts: %+v cuts=%d", m, f.video.cutCalls())
	}
	c := m.Clips[0]
	if c.Status != types.ClipProduced || c.StartSec != 100 || c.EndSec != 150 {
		t.Fatalf("moved clip not re-extracted: %+v", c)
	}
	if !fileExists(filepath.Join(res.VideoDir, c.Media)) {
		t.Fatalf("missing media %s", c.Media)
	}
}

func TestRun_RefusalYieldsZeroClips(t *testing.T) {
	t.Parallel()

	f := newFakes("I cannot help with that.")
	res, err := New(f.deps()).Run(context.Background(), testInput(t.TempDir()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Manifest.Proposals != 0 || len(res.Manifest.Clips) != 0 {
		t.Fatalf("expected zero clips, got %+v", res.Manifest)
	}
	if f.video.cutCalls() != 0 {
		t.Fatalf("no extraction expected")
	}
	if !fileExists(res.ManifestPath) {
		t.Fatalf("manifest should still be written")
	}
}

func TestRun_ProposalGenerationFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	f := newFakes("")
	f.llm.proposeErr = errors.New("status 503")
	res, err := New(f.deps()).Run(context.Background(), testInput(t.TempDir()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Manifest.Clips) != 0 {
		t.Fatalf("expected zero clips")
	}
}

func TestRun_ExtractionFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFakes(threeProposals)
	f.video.failAt = 40 * time.Second
	res, err := New(f.deps()).Run(context.Background(), testInput(t.TempDir()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	m := res.Manifest
	if m.Produced != 2 || m.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	failed := m.Clips[1]
	if failed.Status != types.ClipFailed || failed.Error == "" || failed.Media != "" {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}
	entries, err := os.ReadDir(res.VideoDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "2_") || strings.Contains(e.Name(), ".part.") {
			t.Fatalf("leftover file for failed clip: %s", e.Name())
		}
	}
	if m.Clips[2].Status != types.ClipProduced {
		t.Fatalf("job after the failure should still run: %+v", m.Clips[2])
	}
}

func TestRun_SourceDurationGuard(t *testing.T) {
	t.Parallel()

	f := newFakes(threeProposals)
	f.video.duration = 100 * time.Second
	res, err := New(f.deps()).Run(context.Background(), testInput(t.TempDir()))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	m := res.Manifest
	if m.Accepted != 2 || len(m.Rejected) != 1 || m.Rejected[0].Position != 2 {
		t.Fatalf("expected the past-the-end cut rejected: %+v", m)
	}
}

func TestRun_WorkersKeepIndexOrder(t *testing.T) {
	t.Parallel()

	f := newFakes(threeProposals)
	f.video.delay = func(start time.Duration) time.Duration {
		// earlier cuts finish last
		return time.Duration(300-int(start.Seconds())) * time.Millisecond / 10
	}
	in := testInput(t.TempDir())
	in.Workers = 3
	res, err := New(f.deps()).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, c := range res.Manifest.Clips {
		if c.Index != i+1 || !strings.HasPrefix(c.Media, fmt.Sprintf("%d_", i+1)) {
			t.Fatalf("clip %d out of order: %+v", i, c)
		}
	}
}

func TestRun_LocalFileSkipsAcquisition(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	src := filepath.Join(tmp, "Lecture 01.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFakes(threeProposals)
	in := testInput(filepath.Join(tmp, "out"))
	in.Source = src
	in.LocalFile = true
	in.Uploader = ""

	res, err := New(f.deps()).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.acq.inspects != 0 || f.acq.downloads != 0 {
		t.Fatalf("acquirer must not be called for local files")
	}
	if res.Manifest.Title != "Lecture 01" || res.Manifest.Uploader != "unknown" {
		t.Fatalf("unexpected asset metadata: %+v", res.Manifest)
	}
	if filepath.Base(res.VideoDir) != "Lecture_01" {
		t.Fatalf("video dir=%s", res.VideoDir)
	}
}

func TestRun_InvalidPolicyFailsBeforeAnyCall(t *testing.T) {
	t.Parallel()

	f := newFakes(threeProposals)
	in := testInput(t.TempDir())
	in.Policy.AllowedPlatforms = nil
	if _, err := New(f.deps()).Run(context.Background(), in); err == nil {
		t.Fatal("expected error")
	}
	if f.acq.inspects != 0 {
		t.Fatal("acquirer called despite invalid config")
	}
}

func TestFolderName(t *testing.T) {
	tests := map[string]string{
		"My Long Talk":        "My_Long_Talk",
		`a/b\c:d*e?f"g<h>i|j`: "a_b_c_d_e_f_g_h_i_j",
		"  ..  ":              "video",
		"":                    "video",
		"Olá, mundo!":         "Olá,_mundo!",
	}
	for in, want := range tests {
		if got := folderName(in); got != want {
			t.Fatalf("folderName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProposalPromptRendersPolicy(t *testing.T) {
	tmpl, err := ParseProposalPrompt("")
	if err != nil {
		t.Fatal(err)
	}
	ix := transcript.NewIndex(testSegments())
	got, err := renderProposalPrompt(tmpl, testPolicy(), ix)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"at least 30 seconds", "at most 300 seconds", "one of: shorts", "[0.0-10.0] line 0"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if _, err := ParseProposalPrompt("{{.Nope"); err == nil {
		t.Fatal("expected template error")
	}
}

// fakes

type fakes struct {
	acq   *fakeAcquirer
	video *fakeVideoTool
	asr   *fakeASR
	llm   *fakeLLM
}

func newFakes(proposalOutput string) *fakes {
	return &fakes{
		acq:   &fakeAcquirer{info: ports.SourceInfo{Title: "My Long Talk", Uploader: "Some Channel"}},
		video: &fakeVideoTool{},
		asr:   &fakeASR{tr: types.Transcript{Segments: testSegments()}},
		llm:   &fakeLLM{proposals: proposalOutput},
	}
}

func (f *fakes) deps() Deps {
	return Deps{Acquirer: f.acq, Video: f.video, ASR: f.asr, LLM: f.llm}
}

func (f *fakes) resetCounts() {
	f.acq.inspects, f.acq.downloads = 0, 0
	f.asr.calls = 0
	f.video.mu.Lock()
	f.video.audioCalls, f.video.cuts = 0, 0
	f.video.mu.Unlock()
}

func testInput(out string) Input {
	return Input{
		Source:   "https://example.com/watch?v=1",
		OutRoot:  out,
		RunID:    "run-1",
		Policy:   testPolicy(),
		WithTags: true,
		Workers:  1,
	}
}

func testPolicy() cuts.Policy {
	return cuts.Policy{MinDuration: 30 * time.Second, MaxDuration: 300 * time.Second, AllowedPlatforms: []string{"shorts"}}
}

type fakeAcquirer struct {
	info      ports.SourceInfo
	inspects  int
	downloads int
}

func (f *fakeAcquirer) Inspect(_ context.Context, _ string) (ports.SourceInfo, error) {
	f.inspects++
	return f.info, nil
}

func (f *fakeAcquirer) Download(_ context.Context, _, dest string) error {
	f.downloads++
	return os.WriteFile(dest, []byte("source video"), 0o644)
}

type fakeVideoTool struct {
	mu         sync.Mutex
	audioCalls int
	cuts       int
	failAt     time.Duration
	duration   time.Duration
	delay      func(start time.Duration) time.Duration
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	f.mu.Lock()
	f.audioCalls++
	f.mu.Unlock()
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeVideoTool) CutCopy(_ context.Context, _ string, start, _ time.Duration, out string) error {
	f.mu.Lock()
	f.cuts++
	f.mu.Unlock()
	if f.delay != nil {
		time.Sleep(f.delay(start))
	}
	if f.failAt != 0 && start == f.failAt {
		_ = os.WriteFile(out, []byte("half"), 0o644)
		return errors.New("ffmpeg exited 1")
	}
	return os.WriteFile(out, []byte("clip"), 0o644)
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	if f.duration == 0 {
		return 0, errors.New("no probe")
	}
	return f.duration, nil
}

func (f *fakeVideoTool) cutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cuts
}

type fakeASR struct {
	tr    types.Transcript
	calls int
}

func (f *fakeASR) Transcribe(_ context.Context, _, _ string) (types.Transcript, error) {
	f.calls++
	return f.tr, nil
}

// fakeLLM answers the proposal prompt with a fixed output and numbers every
// title it hands out, so titles differ between runs.
type fakeLLM struct {
	mu         sync.Mutex
	proposals  string
	proposeErr error
	titles     int
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "propose cuts"):
		return f.proposals, f.proposeErr
	case strings.Contains(prompt, "Tags:"):
		return "talk, ideas", nil
	default:
		f.mu.Lock()
		defer f.mu.Unlock()
		f.titles++
		return fmt.Sprintf("Sharp title %d", f.titles), nil
	}
}

func (f *fakeLLM) titleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles
}

func testSegments() []types.Segment {
	segs := make([]types.Segment, 0, 30)
	for i := 0; i < 30; i++ {
		segs = append(segs, types.Segment{
			Start: float64(i * 10),
			End:   float64(i*10 + 10),
			Text:  fmt.Sprintf("line %d", i),
		})
	}
	return segs
}
