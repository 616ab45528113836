// Package web provides the radiopi control panel server.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sflip/radiopi/core/control"
	"github.com/sflip/radiopi/internal/audit"
	"github.com/sflip/radiopi/internal/logging"
	"github.com/sflip/radiopi/internal/server"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Templates is the parsed template set.
var Templates *template.Template

const (
	// DefaultPort is the listen port when none is configured.
	DefaultPort = 8080
	// DefaultLiveInterval is the push period of the live status socket.
	DefaultLiveInterval = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	Port         int
	Program      string        // Path to the control program
	Timeout      time.Duration // Per-invocation deadline
	Features     control.Features
	Hostname     string // Shown in the page footer; defaults to os.Hostname
	Audit        audit.Config
	LiveInterval time.Duration

	// ActionRatePerMinute limits POSTs per client; zero disables the limit.
	ActionRatePerMinute int
	ActionBurst         int
	TrustProxyHeaders   bool

	TLS TLSConfig
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// Validate checks the configuration before the server starts.
func (cfg Config) Validate() error {
	if cfg.Program == "" {
		return fmt.Errorf("control program path not specified")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	return nil
}

var templateFuncs = template.FuncMap{
	"iterate": func(n int) []int {
		result := make([]int, n)
		for i := range result {
			result[i] = i
		}
		return result
	},
	"active": func(current, want control.Module) string {
		if current == want {
			return "active"
		}
		return ""
	},
	"lower": strings.ToLower,
}

// ParseTemplates parses the embedded templates into Templates.
func ParseTemplates() error {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	Templates = t
	return nil
}

// Server serves the control panel for one control program.
type Server struct {
	runner       control.Runner
	dispatcher   *control.Dispatcher
	features     control.Features
	hostname     string
	liveInterval time.Duration
	hub          *Hub
}

// NewServer creates a Server that drives runner.
func NewServer(runner control.Runner, cfg Config) (*Server, error) {
	if Templates == nil {
		if err := ParseTemplates(); err != nil {
			return nil, err
		}
	}

	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	interval := cfg.LiveInterval
	if interval <= 0 {
		interval = DefaultLiveInterval
	}

	return &Server{
		runner:       runner,
		dispatcher:   control.NewDispatcher(runner, cfg.Features),
		features:     cfg.Features,
		hostname:     hostname,
		liveInterval: interval,
		hub:          NewHub(),
	}, nil
}

// Routes configures all HTTP routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/api/status", server.AllowMethods(http.HandlerFunc(s.handleAPIStatus), http.MethodGet, http.MethodHead))
	mux.HandleFunc("/ws", s.handleLive)
	mux.HandleFunc("/static/", handleStatic)
	return mux
}

// Handler returns the routes wrapped in the middleware chain:
// logging -> timing -> security headers -> no-cache -> rate limit.
func (s *Server) Handler(ctx context.Context, cfg Config) http.Handler {
	var h http.Handler = s.Routes()
	if cfg.ActionRatePerMinute > 0 {
		limiter := server.NewRateLimiter(ctx, server.RateLimiterConfig{
			RequestsPerMinute: cfg.ActionRatePerMinute,
			BurstSize:         cfg.ActionBurst,
			Methods:           []string{http.MethodPost},
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		})
		h = limiter.Middleware(h)
	}
	h = server.NoCacheMiddleware(h)
	h = server.SecurityHeadersWithCSP(server.WebUICSPConfig(), h)
	return logging.CombinedMiddleware(server.TimingMiddleware(h))
}

// Start runs the web server until ctx is cancelled.
func Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	auditLog, err := audit.Open(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer auditLog.Close()

	invoker := control.NewInvoker(cfg.Program, auditLog)
	if cfg.Timeout > 0 {
		invoker.Timeout = cfg.Timeout
	}

	srv, err := NewServer(invoker, cfg)
	if err != nil {
		return err
	}

	protocol := "http"
	if cfg.TLS.Enabled {
		protocol = "https"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy outside the home network")
	}
	if cfg.ActionRatePerMinute > 0 {
		logging.SecurityEvent("rate_limit_configured", "web",
			"actions_per_minute", cfg.ActionRatePerMinute,
			"burst", cfg.ActionBurst)
	}
	logging.ServerStartup("web_ui", protocol, cfg.Port,
		"program", server.AbsPath(cfg.Program),
		"audit_log", cfg.Audit.Path,
		"hostname", srv.hostname,
		"actions", strings.Join(cfg.Features.Actions(), ","))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(ctx, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down web server")
	srv.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
