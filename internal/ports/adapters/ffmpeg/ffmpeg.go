package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Adapter drives ffmpeg through ffmpeg-go. Probing always uses the ffprobe
// found on PATH.
type Adapter struct {
	ffmpeg string
}

func New(ffmpegPath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Adapter{ffmpeg: ffmpegPath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	err := a.run(ctx, ffmpeg.Input(inMP4).
		Output(outWav, ffmpeg.KwArgs{
			"vn": "",
			"ac": 1,
			"ar": 16000,
			"f":  "wav",
		}).
		OverWriteOutput())
	if err != nil {
		return errors.Wrap(err, "ffmpeg extract audio")
	}
	return nil
}

// CutCopy seeks on the input and stream-copies length of media. Cuts land on
// keyframes, so the output duration is approximate.
func (a *Adapter) CutCopy(ctx context.Context, in string, start, length time.Duration, out string) error {
	if length <= 0 {
		return errors.Errorf("ffmpeg cut: non-positive length %s", length)
	}
	err := a.run(ctx, ffmpeg.Input(in, ffmpeg.KwArgs{"ss": fmtSeconds(start)}).
		Output(out, ffmpeg.KwArgs{
			"t":                 fmtSeconds(length),
			"c":                 "copy",
			"avoid_negative_ts": "make_zero",
			"movflags":          "+faststart",
			"f":                 "mp4",
		}).
		OverWriteOutput())
	if err != nil {
		return errors.Wrapf(err, "ffmpeg cut %s+%s", fmtSeconds(start), fmtSeconds(length))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMP4 string) (time.Duration, error) {
	out, err := a.probe(ctx, inMP4)
	if err != nil {
		return 0, errors.Wrap(err, "ffprobe duration")
	}
	var data struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, errors.WithStack(err)
	}
	s := strings.TrimSpace(data.Format.Duration)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func (a *Adapter) run(ctx context.Context, s *ffmpeg.Stream) error {
	cmd := s.SetFfmpegPath(a.ffmpeg).Compile()
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return errors.WithStack(err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return errors.Errorf("%v\n%s", err, tail(stderr.String(), 2000))
		}
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func (a *Adapter) probe(ctx context.Context, in string) (string, error) {
	var timeout time.Duration
	if dl, ok := ctx.Deadline(); ok {
		if timeout = time.Until(dl); timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}
	return ffmpeg.ProbeWithTimeout(in, timeout, nil)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
