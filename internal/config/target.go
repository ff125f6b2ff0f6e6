package config

// Target identifies the deployment under test.
type Target struct {
	Host   string
	Secure bool
}

// Scheme returns "https" for secure targets and "http" otherwise.
func (t Target) Scheme() string {
	if t.Secure {
		return "https"
	}
	return "http"
}

// URL joins the target origin with path, which must start with a slash.
func (t Target) URL(path string) string {
	return t.Scheme() + "://" + t.Host + path
}

// HealthURL is the liveness endpoint probed before the smoke test.
func (t Target) HealthURL() string { return t.URL("/health") }

// SSEURL is the MCP streaming session endpoint.
func (t Target) SSEURL() string { return t.URL("/sse") }
