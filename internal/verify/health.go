package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcpguard/mcpverify/internal/config"
	"github.com/mcpguard/mcpverify/internal/httpkit"
)

// maxHealthBody caps how much of the /health response is read.
const maxHealthBody = 1 << 20

// HealthProbe issues a single GET against the target's /health endpoint.
// Only a 200 counts as healthy.
type HealthProbe struct {
	Client   *http.Client
	Out      io.Writer
	Redactor Redactor
	Logger   *slog.Logger
}

// Check never returns an error: transport faults become a failed result.
func (p *HealthProbe) Check(ctx context.Context, target config.Target) HealthResult {
	out := orDiscard(p.Out)
	logger := orDefault(p.Logger)

	if target.Host == "" {
		fmt.Fprintln(out, "❌ Health check error: host must not be empty")
		return HealthResult{Result: fail("host must not be empty")}
	}

	url := target.HealthURL()
	fmt.Fprintf(out, "🏥 Testing health check at: %s\n", url)

	client := p.Client
	if client == nil {
		client = httpkit.NewClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return p.fault(out, fmt.Errorf("create request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("health probe transport error", "url", url, "error", err)
		return p.fault(out, err)
	}
	body, err := httpkit.ReadBody(resp.Body, maxHealthBody)
	if err != nil {
		return p.fault(out, err)
	}
	logger.Debug("health probe response", "url", url, "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "❌ Health check failed with status: %d\n", resp.StatusCode)
		return HealthResult{
			Result: fail(fmt.Sprintf("health check returned status %d", resp.StatusCode)),
			Status: resp.StatusCode,
			Body:   body,
		}
	}

	body = redact(p.Redactor, logger, "health", body, len(body))
	fmt.Fprintln(out, "✅ Health check passed!")
	fmt.Fprintf(out, "📄 Response: %s\n", body)
	return HealthResult{
		Result: pass("health check passed"),
		Status: resp.StatusCode,
		Body:   body,
	}
}

func (p *HealthProbe) fault(out io.Writer, err error) HealthResult {
	fmt.Fprintf(out, "❌ Health check error: %v\n", err)
	return HealthResult{Result: fail(err.Error())}
}
