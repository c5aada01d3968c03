package cuts

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/forPelevin/clipsmith/internal/domain/proposals"
	"github.com/forPelevin/clipsmith/internal/types"
)

const (
	defaultDescription = "No title"

	// sourceSlack tolerates model rounding at the very end of the source.
	sourceSlack = time.Second
)

type Policy struct {
	MinDuration      time.Duration
	MaxDuration      time.Duration
	AllowedPlatforms []string

	// SourceDuration, when > 0, drops proposals that end after the source.
	SourceDuration time.Duration
}

func (p Policy) Validate() error {
	if p.MinDuration <= 0 {
		return errors.New("min duration must be > 0")
	}
	if p.MaxDuration < p.MinDuration {
		return errors.New("max duration must be >= min duration")
	}
	if len(normalizePlatforms(p.AllowedPlatforms)) == 0 {
		return errors.New("at least one platform is required")
	}
	return nil
}

// Rejection explains why the proposal at Position (0-based, input order)
// was dropped.
type Rejection struct {
	Position int
	Reason   string
}

// Validate applies p to props in order and returns the accepted jobs in
// acceptance order. The first proposal for a given title key wins.
// Overlapping jobs are allowed.
func Validate(props []proposals.Proposal, p Policy) ([]types.CutJob, []Rejection) {
	allowed := normalizePlatforms(p.AllowedPlatforms)
	usedTitles := make(map[string]struct{}, len(props))

	var (
		jobs     []types.CutJob
		rejected []Rejection
	)
	reject := func(i int, format string, args ...any) {
		rejected = append(rejected, Rejection{Position: i, Reason: fmt.Sprintf(format, args...)})
	}

	for i, pr := range props {
		start, err := toSeconds(pr.Start)
		if err != nil {
			reject(i, "start: %v", err)
			continue
		}
		end, err := toSeconds(pr.End)
		if err != nil {
			reject(i, "end: %v", err)
			continue
		}
		if start < 0 {
			reject(i, "start %.3f is negative", start)
			continue
		}
		platform, ok := toText(pr.Platform)
		if !ok || strings.TrimSpace(platform) == "" {
			reject(i, "platform is missing")
			continue
		}
		platform = strings.ToLower(strings.TrimSpace(platform))
		if _, ok := allowed[platform]; !ok {
			reject(i, "platform %q is not allowed", platform)
			continue
		}

		dur := end - start
		if dur < p.MinDuration.Seconds() || dur > p.MaxDuration.Seconds() {
			reject(i, "duration %.3fs outside [%s, %s]", dur, p.MinDuration, p.MaxDuration)
			continue
		}
		if p.SourceDuration > 0 && end > (p.SourceDuration+sourceSlack).Seconds() {
			reject(i, "end %.3fs is past the source end (%s)", end, p.SourceDuration)
			continue
		}

		desc, ok := toText(pr.Description)
		desc = strings.TrimSpace(desc)
		if !ok || desc == "" {
			desc = defaultDescription
		}
		key := Slugify(desc)
		if _, dup := usedTitles[key]; dup {
			reject(i, "duplicate title key %q", key)
			continue
		}
		usedTitles[key] = struct{}{}

		jobs = append(jobs, types.CutJob{
			Index:       len(jobs) + 1,
			Start:       seconds(start),
			End:         seconds(end),
			Description: desc,
			Platform:    platform,
			TitleKey:    key,
		})
	}
	return jobs, rejected
}

// maxSeconds is the largest offset a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

func toSeconds(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, errors.New("missing")
	case bool:
		return 0, fmt.Errorf("not a number: %v", x)
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, errors.New("empty")
		}
		v = strings.TrimSpace(x)
	case json.Number:
		v = x.String()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}
	if math.Abs(f) > maxSeconds {
		return 0, fmt.Errorf("out of range: %v", v)
	}
	return f, nil
}

func toText(v any) (string, bool) {
	switch v.(type) {
	case nil, map[string]any, []any:
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

func normalizePlatforms(ps []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

func seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
