//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func probeDurationSeconds(mp4Path string) (float64, error) {
	out, err := ffmpeg.Probe(mp4Path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", mp4Path, err)
	}
	var data struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, fmt.Errorf("decode probe: %w", err)
	}
	s := strings.TrimSpace(data.Format.Duration)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}
