package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcpguard/mcpverify/internal/config"
)

var rule = strings.Repeat("=", 50)

// Verifier runs the checks in order: health (unless skipped), then the
// smoke test, then the report. A failed health check stops the run before
// any MCP traffic is sent.
type Verifier struct {
	Health     HealthChecker
	Smoke      SmokeTester
	SkipHealth bool
	ServerName string
	Out        io.Writer
	Logger     *slog.Logger
}

// Deps are the collaborators New threads into each check. Nil clients
// fall back to httpkit defaults; a nil Redactor disables redaction.
type Deps struct {
	HealthClient  *http.Client
	SessionClient *http.Client
	Redactor      Redactor
	Out           io.Writer
	Logger        *slog.Logger
}

// New wires a Verifier from cfg with the given HTTP plumbing and redactor.
func New(cfg *config.Config, deps Deps) *Verifier {
	return &Verifier{
		Health: &HealthProbe{
			Client:   deps.HealthClient,
			Out:      deps.Out,
			Redactor: deps.Redactor,
			Logger:   deps.Logger,
		},
		Smoke: &SmokeTest{
			HTTPClient: deps.SessionClient,
			ToolName:   cfg.ToolName,
			Query:      cfg.Query,
			Out:        deps.Out,
			Redactor:   deps.Redactor,
			Logger:     deps.Logger,
		},
		SkipHealth: cfg.SkipHealth,
		ServerName: cfg.ServerName,
		Out:        deps.Out,
		Logger:     deps.Logger,
	}
}

// Run executes the checks against target and returns the process exit code.
func (v *Verifier) Run(ctx context.Context, target config.Target) int {
	out := orDiscard(v.Out)
	logger := orDefault(v.Logger)

	fmt.Fprintln(out, "🚀 Starting deployment test...")
	fmt.Fprintln(out, rule)

	if v.SkipHealth {
		logger.Info("health check skipped")
	} else {
		res := v.Health.Check(ctx, target)
		logger.Info("health check finished", "ok", res.OK, "status", res.Status, "message", res.Message)
		if !res.OK {
			fmt.Fprintln(out, "\n❌ Health check failed. Please check your deployment.")
			return ExitFailure
		}
		fmt.Fprintln(out)
	}

	res := v.Smoke.Run(ctx, target)
	logger.Info("smoke test finished", "ok", res.OK, "message", res.Message)

	fmt.Fprintln(out, "\n"+rule)
	if !res.OK {
		fmt.Fprintln(out, "❌ Some tests failed. Please check your deployment.")
		return ExitFailure
	}

	fmt.Fprintln(out, "🎉 All tests passed! Your deployment is working correctly.")
	snippet, err := ClientConfig(v.serverName(), target.SSEURL())
	if err != nil {
		logger.Error("failed to render client configuration", "error", err)
		return ExitOK
	}
	fmt.Fprintln(out, "\n📋 MCP Client Configuration:")
	fmt.Fprint(out, snippet)
	return ExitOK
}

func (v *Verifier) serverName() string {
	if v.ServerName == "" {
		return config.DefaultServerName
	}
	return v.ServerName
}
