package transcript

import (
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipsmith/internal/types"
)

// Index answers range queries over an ordered transcript.
type Index struct {
	segs []types.Segment
}

// NewIndex copies segs, dropping any segment without start < end.
func NewIndex(segs []types.Segment) *Index {
	cp := make([]types.Segment, 0, len(segs))
	for _, s := range segs {
		if s.End > s.Start {
			cp = append(cp, s)
		}
	}
	return &Index{segs: cp}
}

func (ix *Index) Len() int { return len(ix.segs) }

// TextCovering joins, in order, the text of every segment overlapping
// [start, end) with single spaces.
func (ix *Index) TextCovering(start, end time.Duration) string {
	var parts []string
	for _, s := range ix.SegmentsCovering(start, end) {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// SegmentsCovering returns the segments with s.End > start and s.Start < end.
func (ix *Index) SegmentsCovering(start, end time.Duration) []types.Segment {
	if end <= start {
		return nil
	}
	lo, hi := start.Seconds(), end.Seconds()
	var out []types.Segment
	for _, s := range ix.segs {
		if s.End > lo && s.Start < hi {
			out = append(out, s)
		}
	}
	return out
}

// Lines renders the transcript as "[start-end] text" lines for prompts.
func (ix *Index) Lines() string {
	var b strings.Builder
	for _, s := range ix.segs {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(fmtSec(s.Start))
		b.WriteString("-")
		b.WriteString(fmtSec(s.End))
		b.WriteString("] ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String()
}

func fmtSec(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 1, 64)
}
