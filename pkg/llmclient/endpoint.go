package llmclient

import (
	"fmt"
	"os"
	"time"

	"github.com/mazerunner/harness/pkg/config"
)

// EndpointConfig describes where and how to reach a chat backend — the
// model endpoint descriptor, deliberately kept out of pkg/config since it
// is process environment, not experiment-sweep state; baseline
// identity/instructions are configured at the endpoint/model level, out of
// this package's scope.
type EndpointConfig struct {
	BaseURL        string
	APIKeyHeader   string
	APIKey         string
	RequestTimeout time.Duration
}

// EndpointFromEnv resolves the endpoint descriptor for provider from the
// process environment (MAZERUNNER_LOCAL_CHAT_URL or
// MAZERUNNER_MANAGED_AGENT_URL, plus the matching _API_KEY_HEADER and
// _API_KEY variables), following the
// same env-driven wiring as the rest of this process's entrypoint rather
// than a YAML-sourced value, since an endpoint URL and credential are
// deployment-environment facts, not sweep parameters.
func EndpointFromEnv(provider config.Provider) (EndpointConfig, error) {
	var prefix string
	switch provider {
	case config.ProviderLocalChat:
		prefix = "MAZERUNNER_LOCAL_CHAT"
	case config.ProviderManagedAgent:
		prefix = "MAZERUNNER_MANAGED_AGENT"
	default:
		return EndpointConfig{}, fmt.Errorf("unknown llm provider %q", provider)
	}

	baseURL := os.Getenv(prefix + "_URL")
	if baseURL == "" {
		return EndpointConfig{}, fmt.Errorf("%s_URL is not set", prefix)
	}

	return EndpointConfig{
		BaseURL:        baseURL,
		APIKeyHeader:   envOr(prefix+"_API_KEY_HEADER", "X-API-Key"),
		APIKey:         os.Getenv(prefix + "_API_KEY"),
		RequestTimeout: 60 * time.Second,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
