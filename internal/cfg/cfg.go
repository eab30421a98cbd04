package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"
)

// Model providers accepted by -model-provider.
const (
	ProviderNone   = "none"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ModelProvider         string
	ClaudeAPIKey          string
	ClaudeModel           string
	GeminiAPIKey          string
	GeminiModel           string
	GeminiEndpoint        string
	GatewayTimeout        time.Duration
	ModelRPS              float64
	BreakerFailures       int
	BreakerCooldown       time.Duration
	ClarifyCacheSize      int
	HeuristicFallback     bool
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ModelProvider, "model-provider", ProviderNone, "model backend for triage: none, claude or gemini (none = keyword heuristic only)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.GeminiAPIKey, "gemini-api-key", "", "API key for the Gemini provider")
	fs.StringVar(&c.GeminiModel, "gemini-model", "gemini-1.5-flash-latest", "Gemini model to use")
	fs.StringVar(&c.GeminiEndpoint, "gemini-endpoint", "https://generativelanguage.googleapis.com/", "Gemini API base URL (the API version is appended)")
	fs.DurationVar(&c.GatewayTimeout, "gateway-timeout", 10*time.Second, "hard deadline for a single model call (1s..60s)")
	fs.Float64Var(&c.ModelRPS, "model-rps", 5, "max outbound model calls per second (0 = unlimited)")
	fs.IntVar(&c.BreakerFailures, "breaker-failures", 5, "consecutive model failures that open the circuit breaker (0 = disabled)")
	fs.DurationVar(&c.BreakerCooldown, "breaker-cooldown", 30*time.Second, "how long the circuit breaker stays open before probing")
	fs.IntVar(&c.ClarifyCacheSize, "clarify-cache-size", 100, "clarification results kept in memory (1..100000)")
	fs.BoolVar(&c.HeuristicFallback, "heuristic-fallback", true, "answer with the keyword heuristic when the model fails")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for ER arrival notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Provider credentials are only required for the selected provider
	switch c.ModelProvider {
	case ProviderNone:
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when MODEL_PROVIDER is claude"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required when MODEL_PROVIDER is claude"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when MODEL_PROVIDER is gemini"))
		}
		if c.GeminiModel == "" {
			errs = append(errs, errors.New("GEMINI_MODEL is required when MODEL_PROVIDER is gemini"))
		}
		if err := validHTTPURL(c.GeminiEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid GEMINI_ENDPOINT: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid MODEL_PROVIDER %q (must be none, claude or gemini)", c.ModelProvider))
	}

	if c.GatewayTimeout < time.Second || c.GatewayTimeout > time.Minute {
		errs = append(errs, fmt.Errorf("invalid GATEWAY_TIMEOUT %s (must be 1s..60s)", c.GatewayTimeout))
	}
	if c.ModelRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid MODEL_RPS %g (must be >= 0)", c.ModelRPS))
	}
	if c.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("invalid BREAKER_FAILURES %d (must be >= 0)", c.BreakerFailures))
	}
	if c.BreakerFailures > 0 && c.BreakerCooldown <= 0 {
		errs = append(errs, fmt.Errorf("invalid BREAKER_COOLDOWN %s (must be positive when the breaker is enabled)", c.BreakerCooldown))
	}

	if c.ClarifyCacheSize <= 0 || c.ClarifyCacheSize > 100000 {
		errs = append(errs, fmt.Errorf("invalid CLARIFY_CACHE_SIZE %d (must be 1..100000)", c.ClarifyCacheSize))
	}

	if c.SlackWebhookURL != "" {
		if err := validHTTPURL(c.SlackWebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid SLACK_WEBHOOK_URL: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
