// Package verify checks a deployed MCP server: an optional HTTP health
// probe followed by a smoke test that lists tools and invokes one over an
// SSE session. Every check reports a Result rather than an error so the
// orchestrator can decide the exit status uniformly.
package verify

import (
	"context"
	"io"
	"log/slog"

	"github.com/mcpguard/mcpverify/internal/config"
	"github.com/mcpguard/mcpverify/internal/detection"
)

// Process exit codes returned by Verifier.Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Result is the outcome of one check.
type Result struct {
	OK      bool
	Message string
}

func pass(msg string) Result { return Result{OK: true, Message: msg} }
func fail(msg string) Result { return Result{OK: false, Message: msg} }

// HealthResult adds the HTTP exchange to a health probe Result.
type HealthResult struct {
	Result
	Status int
	Body   string
}

// HealthChecker probes a target's liveness endpoint.
type HealthChecker interface {
	Check(ctx context.Context, target config.Target) HealthResult
}

// SmokeTester exercises a target's MCP endpoint.
type SmokeTester interface {
	Run(ctx context.Context, target config.Target) Result
}

// Redactor finds secrets in remote text before it is printed.
// *detection.Engine satisfies it.
type Redactor interface {
	Detect(text string) []detection.Result
}

// redact returns text[:end] with any secret found in the full text masked.
// Scanning the full text catches a secret that straddles end.
func redact(r Redactor, logger *slog.Logger, source, text string, end int) string {
	if r == nil {
		return text[:end]
	}
	found := r.Detect(text)
	if len(found) == 0 {
		return text[:end]
	}
	rules := make([]string, 0, len(found))
	for _, f := range found {
		rules = append(rules, f.RuleID)
	}
	logger.Warn("redacted secrets from remote output",
		"source", source,
		"count", len(found),
		"rules", rules,
	)
	return detection.Mask(text, found, end)
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
