package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/clipsmith/internal/types"
)

// lineBudget keeps subtitle rows readable on vertical-video layouts.
const lineBudget = 42

// RenderClipASS renders the segments overlapping [start, end) as ASS
// dialogue events timed relative to start.
func RenderClipASS(segs []types.Segment, start, end time.Duration) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, s := range segs {
		ss, se := dur(s.Start), dur(s.End)
		if se <= start || ss >= end {
			continue
		}
		text := sanitizeASS(s.Text)
		if text == "" {
			continue
		}
		if ss < start {
			ss = start
		}
		if se > end {
			se = end
		}
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ss - start))
		b.WriteString(",")
		b.WriteString(assTime(se - start))
		b.WriteString(",Clip,,0,0,0,,")
		b.WriteString(strings.Join(wrap(text, lineBudget), `\N`))
		b.WriteString("\n")
	}
	return b.String()
}

func wrap(text string, budget int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, w := range strings.Fields(text) {
		if cur.Len() > 0 && len([]rune(cur.String()))+1+len([]rune(w)) > budget {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Clip, Inter, 64, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,5,2,2, 60,60,220,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
