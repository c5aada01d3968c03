package enrich

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/forPelevin/clipsmith/internal/types"
)

const (
	DefaultTitlePrompt = `Given the text below, write a short, catchy and descriptive title for a video clip.
The title must reuse words, phrases or ideas that appear in the text.
Avoid generic titles such as "Clip", "Video", "Excerpt", "Part", "Segment" or similar. Stay faithful to the content.
Answer with the title only, on a single line.

Clip text:
"""{{.Text}}"""
Title:
`

	DefaultTagsPrompt = `Suggest up to 8 short hashtags for a social video clip with the transcript below.
Answer with a single comma-separated line, no explanations.

Clip text:
"""{{.Text}}"""
Tags:
`

	DefaultFallbackWords = 8
	maxTags              = 10
	maxTagLen            = 40
)

var (
	DefaultBannedWords = []string{"clip", "excerpt", "segment", "video"}
	DefaultTags        = []string{"shorts", "highlights", "clips"}
)

// Generator is the text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	TitlePrompt   string
	TagsPrompt    string
	BannedWords   []string
	DefaultTags   []string
	FallbackWords int
	Timeout       time.Duration
	Logf          func(format string, args ...any)
}

// Enricher derives a title and tags for a cut job. It never returns an
// error: every collaborator failure degrades to a deterministic fallback.
type Enricher struct {
	gen         Generator
	titleTmpl   *template.Template
	tagsTmpl    *template.Template
	banned      []string
	defaultTags []string
	words       int
	timeout     time.Duration
	logf        func(format string, args ...any)
}

type Result struct {
	Title string
	Tags  []string
}

func New(gen Generator, o Options) (*Enricher, error) {
	if o.TitlePrompt == "" {
		o.TitlePrompt = DefaultTitlePrompt
	}
	if o.TagsPrompt == "" {
		o.TagsPrompt = DefaultTagsPrompt
	}
	if o.BannedWords == nil {
		o.BannedWords = DefaultBannedWords
	}
	if len(o.DefaultTags) == 0 {
		o.DefaultTags = DefaultTags
	}
	if o.FallbackWords <= 0 {
		o.FallbackWords = DefaultFallbackWords
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	tt, err := template.New("title").Parse(o.TitlePrompt)
	if err != nil {
		return nil, fmt.Errorf("title prompt: %w", err)
	}
	gt, err := template.New("tags").Parse(o.TagsPrompt)
	if err != nil {
		return nil, fmt.Errorf("tags prompt: %w", err)
	}
	banned := make([]string, 0, len(o.BannedWords))
	for _, w := range o.BannedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			banned = append(banned, w)
		}
	}
	return &Enricher{
		gen:         gen,
		titleTmpl:   tt,
		tagsTmpl:    gt,
		banned:      banned,
		defaultTags: o.DefaultTags,
		words:       o.FallbackWords,
		timeout:     o.Timeout,
		logf:        o.Logf,
	}, nil
}

// Enrich produces the title and, when withTags is set, the tags for job.
// text is the transcript covered by the job.
func (e *Enricher) Enrich(ctx context.Context, job types.CutJob, text string, withTags bool) Result {
	res := Result{Title: e.Title(ctx, job, text)}
	if withTags {
		res.Tags = e.Tags(ctx, job, text)
	}
	return res
}

func (e *Enricher) Title(ctx context.Context, job types.CutJob, text string) string {
	out, err := e.call(ctx, e.titleTmpl, text)
	if err != nil {
		e.logf("clip %d: title generation failed, using transcript words: %v", job.Index, err)
		return e.fallbackTitle(job, text)
	}
	if title, ok := pickTitle(out, e.banned); ok {
		return title
	}
	e.logf("clip %d: no usable title line in model output, using transcript words", job.Index)
	return e.fallbackTitle(job, text)
}

func (e *Enricher) Tags(ctx context.Context, job types.CutJob, text string) []string {
	out, err := e.call(ctx, e.tagsTmpl, text)
	if err != nil {
		e.logf("clip %d: tag generation failed, using defaults: %v", job.Index, err)
		return append([]string(nil), e.defaultTags...)
	}
	tags := parseTags(out)
	if len(tags) == 0 {
		return append([]string(nil), e.defaultTags...)
	}
	return tags
}

func (e *Enricher) call(ctx context.Context, tmpl *template.Template, text string) (string, error) {
	if e.gen == nil {
		return "", fmt.Errorf("no text generator configured")
	}
	var b bytes.Buffer
	if err := tmpl.Execute(&b, struct{ Text string }{Text: text}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.gen.Generate(ctx, b.String())
}

func (e *Enricher) fallbackTitle(job types.CutJob, text string) string {
	if t := FallbackTitle(text, e.words); t != "" {
		return t
	}
	return FallbackTitle(job.Description, e.words)
}

// FallbackTitle returns the first n words of text, with "..." appended when
// words were dropped.
func FallbackTitle(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

func pickTitle(out string, banned []string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		t := cleanLine(line)
		if t == "" {
			continue
		}
		lower := strings.ToLower(t)
		if containsAny(lower, banned) {
			continue
		}
		return t, true
	}
	return "", false
}

func cleanLine(s string) string {
	s = trimLabel(strings.TrimSpace(s), "title:")
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '*' && last == '*') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func parseTags(out string) []string {
	out = trimLabel(strings.TrimSpace(out), "tags:")
	fields := strings.FieldsFunc(out, func(r rune) bool { return r == ',' || r == '\n' })
	seen := make(map[string]struct{}, len(fields))
	var tags []string
	for _, f := range fields {
		t := strings.TrimSpace(f)
		t = strings.TrimLeft(t, "-*• ")
		t = strings.TrimPrefix(t, "#")
		t = strings.TrimSpace(t)
		if t == "" || len([]rune(t)) > maxTagLen || strings.HasSuffix(t, ":") {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func trimLabel(s, label string) string {
	if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
		return strings.TrimSpace(s[len(label):])
	}
	return s
}
