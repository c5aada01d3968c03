package usecase

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/forPelevin/clipsmith/internal/domain/cuts"
	"github.com/forPelevin/clipsmith/internal/domain/transcript"
)

const DefaultProposalPrompt = `You run a channel of short clips cut from long videos.
Read the transcript below and propose cuts at the points where the subject changes.
Each cut must be a self-contained moment that makes sense without the rest of the video.

Requirements:
- Every cut has "start" and "end" in seconds, taken from the timestamps in the transcript.
- Every cut lasts at least {{.MinSec}} seconds and at most {{.MaxSec}} seconds.
- Every cut has a "description": a clear, concise title for the moment.
- Every cut has a "platform", one of: {{.Platforms}}.
- Answer with a pure JSON array, no comments and no text outside the JSON.

Example:
[
  {"start": 0, "end": 58, "description": "why he quit his job", "platform": "shorts"}
]

Transcript ([start-end] text, in seconds):
{{.Transcript}}`

type promptData struct {
	MinSec     string
	MaxSec     string
	Platforms  string
	Transcript string
}

// ParseProposalPrompt compiles a proposal prompt template. Empty text selects
// DefaultProposalPrompt.
func ParseProposalPrompt(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultProposalPrompt
	}
	t, err := template.New("proposals").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("proposal prompt: %w", err)
	}
	return t, nil
}

func renderProposalPrompt(t *template.Template, p cuts.Policy, ix *transcript.Index) (string, error) {
	var b bytes.Buffer
	err := t.Execute(&b, promptData{
		MinSec:     strconv.FormatFloat(p.MinDuration.Seconds(), 'f', -1, 64),
		MaxSec:     strconv.FormatFloat(p.MaxDuration.Seconds(), 'f', -1, 64),
		Platforms:  strings.Join(p.AllowedPlatforms, ", "),
		Transcript: ix.Lines(),
	})
	if err != nil {
		return "", fmt.Errorf("render proposal prompt: %w", err)
	}
	return b.String(), nil
}
