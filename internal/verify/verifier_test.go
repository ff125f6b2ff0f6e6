package verify

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/mcpguard/mcpverify/internal/config"
	"github.com/mcpguard/mcpverify/internal/httpkit"
	"github.com/mcpguard/mcpverify/internal/mcptest"
)

type stubHealth struct {
	result HealthResult
	calls  int
}

func (s *stubHealth) Check(context.Context, config.Target) HealthResult {
	s.calls++
	return s.result
}

type stubSmoke struct {
	result Result
	calls  int
}

func (s *stubSmoke) Run(context.Context, config.Target) Result {
	s.calls++
	return s.result
}

func TestVerifier_Ordering(t *testing.T) {
	tests := []struct {
		name       string
		skipHealth bool
		healthOK   bool
		smokeOK    bool
		wantHealth int
		wantSmoke  int
		wantExit   int
	}{
		{name: "all pass", healthOK: true, smokeOK: true, wantHealth: 1, wantSmoke: 1, wantExit: ExitOK},
		{name: "health fails", healthOK: false, smokeOK: true, wantHealth: 1, wantSmoke: 0, wantExit: ExitFailure},
		{name: "smoke fails", healthOK: true, smokeOK: false, wantHealth: 1, wantSmoke: 1, wantExit: ExitFailure},
		{name: "skipped health passes", skipHealth: true, healthOK: false, smokeOK: true, wantHealth: 0, wantSmoke: 1, wantExit: ExitOK},
		{name: "skipped health fails", skipHealth: true, healthOK: true, smokeOK: false, wantHealth: 0, wantSmoke: 1, wantExit: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &stubHealth{result: HealthResult{Result: Result{OK: tt.healthOK}}}
			s := &stubSmoke{result: Result{OK: tt.smokeOK}}
			var out bytes.Buffer
			v := &Verifier{Health: h, Smoke: s, SkipHealth: tt.skipHealth, Out: &out}

			got := v.Run(t.Context(), config.Target{Host: "example.com", Secure: true})

			if got != tt.wantExit {
				t.Errorf("exit = %d, want %d", got, tt.wantExit)
			}
			if h.calls != tt.wantHealth {
				t.Errorf("health calls = %d, want %d", h.calls, tt.wantHealth)
			}
			if s.calls != tt.wantSmoke {
				t.Errorf("smoke calls = %d, want %d", s.calls, tt.wantSmoke)
			}
			if snippet := strings.Contains(out.String(), "mcpServers"); snippet != (tt.wantExit == ExitOK) {
				t.Errorf("snippet printed = %v for exit %d", snippet, got)
			}
		})
	}
}

func TestVerifier_SnippetServerName(t *testing.T) {
	var out bytes.Buffer
	v := &Verifier{
		Health:     &stubHealth{},
		Smoke:      &stubSmoke{result: Result{OK: true}},
		SkipHealth: true,
		ServerName: "staging-search",
		Out:        &out,
	}
	if code := v.Run(t.Context(), config.Target{Host: "staging.example.com"}); code != ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out.String(), `"staging-search": {`) {
		t.Errorf("snippet lacks server name:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"url": "http://staging.example.com/sse"`) {
		t.Errorf("snippet lacks URL:\n%s", out.String())
	}
}

// tlsClients returns clients that trust srv's test certificate.
func tlsClients(srv *mcptest.Server) (health, session *http.Client) {
	tr := srv.Client().Transport.(*http.Transport)
	health = httpkit.NewClient(httpkit.WithTransport(tr.Clone()))
	session = httpkit.NewClient(httpkit.WithTransport(tr.Clone()), httpkit.WithTimeout(0))
	return health, session
}

func newVerifier(cfg *config.Config, health, session *http.Client, out *bytes.Buffer) *Verifier {
	return New(cfg, Deps{HealthClient: health, SessionClient: session, Out: out})
}

// Health returns 200 "OK", web_search is present and succeeds.
func TestEndToEnd_HTTPSSuccess(t *testing.T) {
	srv := mcptest.NewServer(t, mcptest.Options{
		TLS:   true,
		Tools: []mcptest.Tool{webSearch("Pricing: Starter $49/mo, Pro $199/mo")},
	})
	health, session := tlsClients(srv)

	cfg := config.NewConfig()
	cfg.Target = config.Target{Host: srv.Host(), Secure: true}

	var out bytes.Buffer
	code := newVerifier(cfg, health, session, &out).Run(t.Context(), cfg.Target)

	if code != ExitOK {
		t.Fatalf("exit = %d, want 0\n%s", code, out.String())
	}
	o := out.String()
	if !strings.Contains(o, "Response: OK") {
		t.Errorf("health body not shown:\n%s", o)
	}
	if !strings.Contains(o, `"url": "https://`+srv.Host()+`/sse"`) {
		t.Errorf("snippet lacks https SSE URL:\n%s", o)
	}
	if srv.HealthHits() != 1 || srv.SSEHits() != 1 {
		t.Errorf("health hits = %d, sse hits = %d, want 1 each", srv.HealthHits(), srv.SSEHits())
	}
}

// Health returns 503: exit 1 and no MCP traffic.
func TestEndToEnd_HealthUnavailable(t *testing.T) {
	srv := mcptest.NewServer(t, mcptest.Options{
		HealthStatus: http.StatusServiceUnavailable,
		HealthBody:   "draining",
		Tools:        []mcptest.Tool{webSearch("unused")},
	})

	cfg := config.NewConfig()
	cfg.Target = config.Target{Host: srv.Host()}

	var out bytes.Buffer
	code := newVerifier(cfg, nil, nil, &out).Run(t.Context(), cfg.Target)

	if code != ExitFailure {
		t.Fatalf("exit = %d, want 1", code)
	}
	if srv.SSEHits() != 0 {
		t.Errorf("smoke test opened %d SSE streams", srv.SSEHits())
	}
	o := out.String()
	if strings.Contains(o, "Testing deployment at") || strings.Contains(o, "Connecting to MCP server") {
		t.Errorf("smoke test output produced:\n%s", o)
	}
	if !strings.Contains(o, "Health check failed. Please check your deployment.") {
		t.Errorf("missing failure banner:\n%s", o)
	}
}

// Plain HTTP only: every URL uses http://.
func TestEndToEnd_PlainHTTP(t *testing.T) {
	srv := mcptest.NewServer(t, mcptest.Options{Tools: []mcptest.Tool{webSearch("ok")}})

	v := config.NewViper()
	v.Set(config.KeyDomain, srv.Host())
	v.Set(config.KeyNoHTTPS, true)
	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var out bytes.Buffer
	code := newVerifier(cfg, nil, nil, &out).Run(t.Context(), cfg.Target)

	if code != ExitOK {
		t.Fatalf("exit = %d, want 0\n%s", code, out.String())
	}
	o := out.String()
	if strings.Contains(o, "https://") {
		t.Errorf("output mentions https:\n%s", o)
	}
	for _, want := range []string{
		"http://" + srv.Host() + "/health",
		"http://" + srv.Host() + "/sse",
	} {
		if !strings.Contains(o, want) {
			t.Errorf("output missing %q:\n%s", want, o)
		}
	}
}

func TestEndToEnd_SkipHealth(t *testing.T) {
	srv := mcptest.NewServer(t, mcptest.Options{
		HealthStatus: http.StatusInternalServerError,
		Tools:        []mcptest.Tool{webSearch("ok")},
	})

	cfg := config.NewConfig()
	cfg.Target = config.Target{Host: srv.Host()}
	cfg.SkipHealth = true

	var out bytes.Buffer
	code := newVerifier(cfg, nil, nil, &out).Run(t.Context(), cfg.Target)

	if code != ExitOK {
		t.Fatalf("exit = %d, want 0\n%s", code, out.String())
	}
	if srv.HealthHits() != 0 {
		t.Errorf("health endpoint hit %d times with skip-health", srv.HealthHits())
	}
}

func TestEndToEnd_ToolMissing(t *testing.T) {
	srv := mcptest.NewServer(t, mcptest.Options{Tools: []mcptest.Tool{{Name: "fetch"}}})

	cfg := config.NewConfig()
	cfg.Target = config.Target{Host: srv.Host()}

	var out bytes.Buffer
	code := newVerifier(cfg, nil, nil, &out).Run(t.Context(), cfg.Target)

	if code != ExitFailure {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "Some tests failed") {
		t.Errorf("missing failure summary:\n%s", out.String())
	}
}
