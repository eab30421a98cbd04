// Pulseroute turns free-text patient intake into a severity score, care route
// and wait estimate, and re-scores it from yes/no follow-up answers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	vc "github.com/linnemanlabs/pulseroute/internal/cfg"
	"github.com/linnemanlabs/pulseroute/internal/intakeapi"
	"github.com/linnemanlabs/pulseroute/internal/llm/claude"
	"github.com/linnemanlabs/pulseroute/internal/llm/gemini"
	"github.com/linnemanlabs/pulseroute/internal/notify/slack"
	"github.com/linnemanlabs/pulseroute/internal/triage"
	"github.com/linnemanlabs/pulseroute/internal/triage/fifocache"
)

const (
	appName   = "pulseroute"
	component = "server"

	// intake bodies are short free text
	maxRequestBytes = 64 << 10
)

// config groups the flag-backed options of every package.
type config struct {
	app    vc.Config
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	c, showVersion, err := loadConfig()
	if err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("%s (%s) %s (commit=%s, build_date=%s, go=%s)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion)
		return nil
	}

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting pulseroute",
		"version", vi.Version,
		"commit", vi.Commit,
		"http_port", c.app.APIPort,
		"admin_port", c.ops.Port,
		"model_provider", c.app.ModelProvider,
		"heuristic_fallback", c.app.HeuristicFallback,
		"clarify_cache_size", c.app.ClarifyCacheSize,
		"enable_tracing", c.trace.EnableTracing,
		"enable_pyroscope", c.prof.EnablePyroscope,
	)

	stopProf, profErr := prof.Start(ctx, profileOptions(&c.prof, &vi))
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtel, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtel != nil {
		defer func() { _ = shutdownOtel(context.Background()) }()
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && c.prof.EnablePyroscope)

	triageMetrics := triage.NewMetrics(m.Registry())
	svc, err := newTriageService(ctx, &c.app, L, triageMetrics, m)
	if err != nil {
		return err
	}

	apiOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	// readiness fails once draining starts so the load balancer stops routing here
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic
	stopOps, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}

	h := newAPIHandler(L, svc, triageMetrics, m, c.httpmw.TrustedProxyHops, liveness, readiness)

	stopAPI, err := httpserver.Start(ctx, fmt.Sprintf(":%d", c.app.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		_ = stopOps(context.Background())
		return err
	}

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	drain(L, time.Duration(c.app.DrainSeconds)*time.Second)

	shutdown(L, time.Duration(c.app.ShutdownBudgetSeconds)*time.Second, []stopFn{
		{"api http server", stopAPI},
		{"ops http server", stopOps},
		{"otel", shutdownOtel},
	})

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// loadConfig parses flags, fills unset ones from PULSEROUTE_* env vars and
// validates the result.
func loadConfig() (*config, bool, error) {
	var c config
	fs := flag.CommandLine
	c.app.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.httpmw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
	showVersion := fs.Bool("V", false, "Print version+build information and exit")

	flag.Parse()
	if *showVersion {
		return &c, true, nil
	}

	// env vars never override explicit flags
	cfg.FillFromEnv(fs, "PULSEROUTE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		c.app.Validate(),
		c.http.Validate(),
		c.httpmw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	); err != nil {
		return nil, false, fmt.Errorf("configuration validation failed: %w", err)
	}
	if c.app.APIPort == c.ops.Port {
		return nil, false, fmt.Errorf("http and admin ports must differ (both %d)", c.app.APIPort)
	}
	return &c, false, nil
}

func profileOptions(c *prof.Config, vi *v.Info) *prof.Options {
	opts := c.ToOptions()
	opts.AppName = v.AppName
	opts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	return opts
}

// newTriageService wires the clarification cache, model gateway, engine and
// ER notifier into a triage.Service.
func newTriageService(ctx context.Context, c *vc.Config, L log.Logger, tm *triage.Metrics, m *metrics.ServerMetrics) (*triage.Service, error) {
	cache, err := fifocache.New(c.ClarifyCacheSize, tm.OnEvict)
	if err != nil {
		return nil, fmt.Errorf("clarify cache init: %w", err)
	}
	tm.TrackCacheSize(m.Registry(), cache.Len)

	provider, system, err := buildProvider(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("model provider init: %w", err)
	}
	var gateway *triage.Gateway
	if provider != nil {
		gateway = triage.NewGateway(provider, system, gatewayConfig(c), L)
	}

	engine := triage.NewEngine(gateway, c.HeuristicFallback, L, tm.Hooks())
	L.Info(ctx, "triage engine ready",
		"model_enabled", engine.ModelEnabled(),
		"gen_ai_system", system,
	)

	var notifier triage.Notifier
	if c.SlackWebhookURL != "" {
		notifier = slack.New(c.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	return triage.NewService(cache, engine, L, tm, notifier), nil
}

// newAPIHandler builds the public listener: chi routes inside, then the
// go-core middleware stack from innermost to outermost.
func newAPIHandler(L log.Logger, svc *triage.Service, tm *triage.Metrics, m *metrics.ServerMetrics, proxyHops int, liveness, readiness health.Probe) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBytes))

	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))
	intakeapi.New(L, svc, tm).RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute renames the span to the route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = m.Middleware(h)
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: proxyHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	return httpmw.SecurityHeaders(h)
}

// drain waits for the load balancer to notice the failing readiness check.
// A second signal cuts the wait short.
func drain(L log.Logger, d time.Duration) {
	L.Info(context.Background(), "draining", "drain_seconds", d.Seconds())
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	select {
	case <-time.After(d):
		L.Info(context.Background(), "drain period complete")
	case <-force:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// shutdown stops each component with an equal slice of budget.
func shutdown(L log.Logger, budget time.Duration, fns []stopFn) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	per := budget / time.Duration(len(fns))
	for _, s := range fns {
		if s.fn == nil {
			continue
		}
		cctx, ccancel := context.WithTimeout(ctx, per)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
}

// buildProvider returns the configured model backend and its gen_ai.system
// name, or nil when the service runs on the heuristic alone.
func buildProvider(ctx context.Context, c *vc.Config) (triage.Provider, string, error) {
	switch c.ModelProvider {
	case vc.ProviderClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel), claude.System, nil
	case vc.ProviderGemini:
		p, err := gemini.New(ctx, c.GeminiAPIKey, c.GeminiModel, c.GeminiEndpoint)
		if err != nil {
			return nil, "", err
		}
		return p, gemini.System, nil
	default:
		return nil, "", nil
	}
}

func gatewayConfig(c *vc.Config) triage.GatewayConfig {
	return triage.GatewayConfig{
		Timeout:           c.GatewayTimeout,
		RequestsPerSecond: c.ModelRPS,
		Burst:             int(math.Ceil(c.ModelRPS)),
		BreakerFailures:   uint32(max(c.BreakerFailures, 0)), //nolint:gosec // G115: validated non-negative
		BreakerCooldown:   c.BreakerCooldown,
	}
}

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd; unixgram dial has no context variant
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
