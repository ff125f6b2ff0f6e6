package detection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces every detected secret in redacted text.
const Placeholder = "[REDACTED]"

// Result describes one secret found in scanned text. Secret holds the
// matched value so callers can mask it and must never be printed.
type Result struct {
	RuleID      string
	Description string
	Secret      string
}

type Engine struct {
	detector *detect.Detector
}

// NewEngine creates a detection engine. With an empty configPath the
// gitleaks built-in rule set is used; otherwise rules are read from the
// given gitleaks TOML file.
func NewEngine(configPath string) (*Engine, error) {
	if configPath == "" {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load default rules: %w", err)
		}
		return &Engine{detector: detector}, nil
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate config: %w", err)
	}

	return &Engine{detector: detect.NewDetector(cfg)}, nil
}

// Detect scans text and returns one Result per finding.
func (e *Engine) Detect(text string) []Result {
	var results []Result
	for _, f := range e.detector.DetectString(text) {
		results = append(results, Result{
			RuleID:      f.RuleID,
			Description: f.Description,
			Secret:      f.Secret,
		})
	}
	return results
}

// Mask returns text[:end] with every occurrence of a found secret replaced
// by Placeholder. Pass len(text) as end to mask the whole text. Occurrences are located in the whole of text, so a secret
// that starts before end and runs past it is masked too.
func Mask(text string, found []Result, end int) string {
	if end > len(text) {
		end = len(text)
	}

	type span struct{ start, end int }
	var spans []span
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			if start >= end {
				break
			}
			spans = append(spans, span{start: start, end: min(start+len(f.Secret), end)})
			off = start + 1
		}
	}
	if len(spans) == 0 {
		return text[:end]
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	pos := 0
	for i := 0; i < len(spans); {
		cur := spans[i]
		for i++; i < len(spans) && spans[i].start <= cur.end; i++ {
			cur.end = max(cur.end, spans[i].end)
		}
		b.WriteString(text[pos:cur.start])
		b.WriteString(Placeholder)
		pos = cur.end
	}
	b.WriteString(text[pos:end])
	return b.String()
}
