package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpguard/mcpverify/internal/buildinfo"
	"github.com/mcpguard/mcpverify/internal/config"
	"github.com/mcpguard/mcpverify/internal/detection"
	"github.com/mcpguard/mcpverify/internal/httpkit"
	"github.com/mcpguard/mcpverify/internal/verify"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and maps its outcome to an exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := verify.ExitOK
	rootCmd, err := newRootCommand(&code)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return verify.ExitFailure
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return verify.ExitFailure
	}
	return code
}

func newRootCommand(code *int) (*cobra.Command, error) {
	v := config.NewViper()
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "mcpverify",
		Short:        "MCP Verify - smoke-test a deployed MCP server",
		Long:         "Checks a deployment's /health endpoint, then opens an MCP session over /sse,\nlists its tools and invokes one. Exits 0 when every executed check passes.",
		Version:      buildinfo.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			*code = runVerify(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}

	f := rootCmd.Flags()
	f.String(config.KeyDomain, config.DefaultDomain, "Domain (host[:port]) to test; URLs with a scheme are rejected")
	f.Bool(config.KeyNoHTTPS, false, "Use HTTP instead of HTTPS")
	f.Bool(config.KeySkipHealth, false, "Skip health check")
	f.String(config.KeyTool, config.DefaultTool, "Tool to invoke during the smoke test")
	f.String(config.KeyQuery, config.DefaultQuery, "Query argument passed to the tool")
	f.String(config.KeyServerName, config.DefaultServerName, "Server name used in the printed client configuration")
	f.Bool(config.KeyInsecure, false, "Skip TLS certificate verification")
	f.Bool(config.KeyRedact, true, "Redact secrets from remote output before printing")
	f.String(config.KeyGitleaksConfig, "", "Path to a gitleaks TOML rule file used for redaction")
	f.String(config.KeyLogLevel, config.DefaultLogLevel, "Diagnostic log level: trace, debug, info, warn, error")
	f.StringVar(&configFile, "config", "", "Optional config file (yaml, json, toml)")

	if err := v.BindPFlags(f); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return rootCmd, nil
}

func runVerify(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	logger := config.NewLogger(stderr, cfg)
	logger.Debug("starting verification",
		"build", buildinfo.String(),
		"host", cfg.Target.Host,
		"secure", cfg.Target.Secure,
		"skip_health", cfg.SkipHealth,
	)

	healthOpts := []httpkit.ClientOption{}
	sessionOpts := []httpkit.ClientOption{httpkit.WithTimeout(0)}
	if cfg.Insecure {
		healthOpts = append(healthOpts, httpkit.WithTLSInsecureSkipVerify())
		sessionOpts = append(sessionOpts, httpkit.WithTLSInsecureSkipVerify())
	}

	deps := verify.Deps{
		HealthClient:  httpkit.NewClient(healthOpts...),
		SessionClient: httpkit.NewClient(sessionOpts...),
		Out:           stdout,
		Logger:        logger,
	}

	if cfg.Redact {
		engine, err := detection.NewEngine(cfg.GitleaksConfig)
		if err != nil {
			logger.Warn("secret redaction disabled", "error", err)
		} else {
			deps.Redactor = engine
		}
	}

	return verify.New(cfg, deps).Run(ctx, cfg.Target)
}
