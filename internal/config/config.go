// Package config loads the optional YAML settings file that overrides
// prompts and clip policy.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings mirrors the settings file. Zero values mean "not set" and leave
// the built-in default in place.
type Settings struct {
	ProposalPrompt string   `yaml:"proposal_prompt"`
	TitlePrompt    string   `yaml:"title_prompt"`
	TagsPrompt     string   `yaml:"tags_prompt"`
	BannedWords    []string `yaml:"banned_words"`
	DefaultTags    []string `yaml:"default_tags"`
	Platforms      []string `yaml:"platforms"`
	MinSeconds     float64  `yaml:"min_seconds"`
	MaxSeconds     float64  `yaml:"max_seconds"`
}

// Load reads path. An empty path yields zero Settings.
func Load(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return Settings{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	s, err := Parse(b)
	if err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a settings document. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func Parse(b []byte) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, err
	}
	if s.MinSeconds < 0 || s.MaxSeconds < 0 {
		return Settings{}, errors.New("durations must not be negative")
	}
	if s.MinSeconds > 0 && s.MaxSeconds > 0 && s.MaxSeconds < s.MinSeconds {
		return Settings{}, fmt.Errorf("max_seconds %.1f is below min_seconds %.1f", s.MaxSeconds, s.MinSeconds)
	}
	s.BannedWords = clean(s.BannedWords)
	s.DefaultTags = clean(s.DefaultTags)
	s.Platforms = clean(s.Platforms)
	return s, nil
}

func clean(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
