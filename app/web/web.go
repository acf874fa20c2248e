// Package web implements the wizard web UI and JSON API
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/robfig/cron/v3"

	"github.com/umputun/lorawiz/app/preset"
	"github.com/umputun/lorawiz/app/service"
	"github.com/umputun/lorawiz/app/service/request"
	"github.com/umputun/lorawiz/app/web/enums"
	"github.com/umputun/lorawiz/app/web/persistence"
)

//go:generate moq -out mocks/runner.go -pkg mocks -skip-ensure -fmt goimports . Runner

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

const (
	defaultMaxUpload  = 1 << 30
	defaultHistoryTTL = time.Hour
	defaultCleanup    = "@every 10m"
	historyLimit      = 50
)

// Server represents the web server
type Server struct {
	store       Persistence
	templates   map[string]*template.Template
	runner      Runner
	presets     PresetProvider
	destDir     string
	uploadDir   string
	maxUpload   int64
	baseURL     string // base URL path for reverse proxy (e.g., /lorawiz), empty for root
	hostname    string
	version     string
	rateLimit   float64
	historyTTL  time.Duration
	cleanup     cron.Schedule
	csrf        *http.CrossOriginProtection
	runCtx      context.Context // parent of all runs, canceled on shutdown
	runsMu      sync.RWMutex
	runs        map[string]*activeRun // run id -> live run
	runsStarted sync.WaitGroup
}

// Runner executes training runs, implemented by service.Runner
type Runner interface {
	Run(ctx context.Context, req request.Training, onProgress func(service.Progress)) (service.Result, error)
	Stream(ctx context.Context, req request.Training) <-chan service.Update
}

// PresetProvider gives access to the preset table, implemented by preset.Table
type PresetProvider interface {
	Lookup(name string) preset.Entry
	Names() []string
	List() []preset.Entry
	Default() string
}

// Persistence defines storage operations for run history
type Persistence interface {
	RecordRun(req request.RecordRun) error
	GetRun(id string) (persistence.RunInfo, error)
	ListRuns(limit int) ([]persistence.RunInfo, error)
	DeleteFinishedBefore(ts time.Time) (int64, error)
	Close() error
}

// Config holds server configuration
type Config struct {
	Runner      Runner
	Presets     PresetProvider
	DestDir     string        // initial "extract to" value
	UploadDir   string        // uploaded archives are kept here for the duration of their run
	MaxUpload   int64         // max upload size in bytes, default 1GiB
	BaseURL     string        // base URL path for reverse proxy, empty for root
	Hostname    string        // hostname to display in UI
	Version     string
	RateLimit   float64       // run submissions per second per client, 0 disables
	HistoryTTL  time.Duration // finished runs older than this are removed, default 1h
	CleanupSpec string        // cron spec for history cleanup, default "@every 10m"
}

// TemplateData holds data for templates
type TemplateData struct {
	BaseURL     string
	Hostname    string
	Version     string
	CurrentYear int
	Theme       enums.Theme
	Presets     []string
	Selected    string       // selected preset name
	Fields      preset.Entry // values of training parameter fields
	Estimate    string       // vram estimate for Fields
	DestDir     string
	Runs        []persistence.RunInfo
	Run         persistence.RunInfo
	Error       string
	IsOOB       bool
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("web server initialization failed: Runner is required")
	}
	if cfg.Presets == nil {
		return nil, fmt.Errorf("web server initialization failed: Presets is required")
	}

	cleanupSpec := cfg.CleanupSpec
	if cleanupSpec == "" {
		cleanupSpec = defaultCleanup
	}
	cleanup, err := cron.ParseStandard(cleanupSpec)
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: invalid cleanup schedule %q: %w", cleanupSpec, err)
	}

	store, err := persistence.NewSQLiteStore(persistence.InMemoryDSN)
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to create SQLite store: %w", err)
	}

	s := &Server{
		store:      store,
		runner:     cfg.Runner,
		presets:    cfg.Presets,
		destDir:    cfg.DestDir,
		uploadDir:  cfg.UploadDir,
		maxUpload:  cfg.MaxUpload,
		baseURL:    cfg.BaseURL,
		hostname:   cfg.Hostname,
		version:    cfg.Version,
		rateLimit:  cfg.RateLimit,
		historyTTL: cfg.HistoryTTL,
		cleanup:    cleanup,
		csrf:       http.NewCrossOriginProtection(),
		runCtx:     context.Background(),
		runs:       make(map[string]*activeRun),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}
	if s.historyTTL <= 0 {
		s.historyTTL = defaultHistoryTTL
	}

	templates, err := s.parseTemplates()
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w (also failed to close store: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server and history cleanup, blocks until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	s.runCtx = ctx

	cr := cron.New()
	cr.Schedule(s.cleanup, cron.FuncJob(s.cleanupRuns))
	cr.Start()

	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
		<-cr.Stop().Done()
		s.runsStarted.Wait()
		if err := s.store.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("lorawiz", "umputun", s.version),
		rest.Ping,
		rest.Trace,
	)

	// event streams outlive the server write timeout and lift it with http.ResponseController,
	// the request logger's writer doesn't pass the deadline through, so this route is not logged
	router.With(rest.NoCache).HandleFunc("GET /api/runs/{id}/events", s.handleRunEvents)

	web := router.Group()
	web.Use(logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler)

	web.With(rest.SizeLimit(64*1024)).HandleFunc("GET /", s.handleWizard)

	// HTMX endpoints
	web.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache, s.csrf.Handler)

		// upload is the only large request
		api.With(s.submitLimiter()).HandleFunc("POST /runs", s.handleStartRun)

		api.Group().Route(func(small *routegroup.Bundle) {
			small.Use(rest.SizeLimit(64 * 1024))
			small.HandleFunc("POST /preset", s.handlePreset)
			small.HandleFunc("POST /vram", s.handleVram)
			small.HandleFunc("GET /runs", s.handleRunsPartial)
			small.HandleFunc("GET /runs/{id}", s.handleRunPartial)
			small.HandleFunc("POST /runs/{id}/cancel", s.handleCancelRun)
			small.HandleFunc("POST /theme", s.handleThemeToggle)
		})
	})

	// JSON API for CLI/programmatic access
	web.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /presets", s.handleAPIPresets)
		api.HandleFunc("GET /presets/{name}", s.handleAPIPreset)
		api.HandleFunc("GET /vram", s.handleAPIVram)
		api.HandleFunc("GET /runs", s.handleAPIRuns)
		api.HandleFunc("GET /runs/{id}", s.handleAPIRun)
		api.With(s.csrf.Handler, s.submitLimiter()).HandleFunc("POST /runs", s.handleAPIStartRun)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		web.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		web.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// submitLimiter limits run submissions per client ip, pass-through if rate limit disabled
func (s *Server) submitLimiter() func(http.Handler) http.Handler {
	if s.rateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	lmt := tollbooth.NewLimiter(s.rateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage("too many runs submitted, try again later")
	return tollbooth.HTTPMiddleware(lmt)
}

// render renders a template
func (s *Server) render(w http.ResponseWriter, status int, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses page and partial templates
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime":     s.humanTime,
		"humanDuration": s.humanDuration,
		"truncate":      s.truncate,
		"url":           s.url,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
		"templates/base.html", "templates/wizard.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base template: %w", err)
	}
	templates["base.html"] = base

	partials, err := template.New("partials").Funcs(funcMap).ParseFS(templatesFS, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse partials: %w", err)
	}
	templates["partials"] = partials

	return templates, nil
}

// newTemplateData creates a TemplateData with common fields populated from request
func (s *Server) newTemplateData(r *http.Request) TemplateData {
	return TemplateData{
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		Version:     shortVersion(s.version),
		CurrentYear: time.Now().Year(),
		Theme:       s.getTheme(r),
		DestDir:     s.destDir,
	}
}

func (s *Server) getTheme(r *http.Request) enums.Theme {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return enums.ThemeAuto
	}
	theme, err := enums.ParseTheme(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid theme %q: %v", cookie.Value, err)
		return enums.ThemeAuto
	}
	return theme
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 15:04:05")
}

func (s *Server) humanDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func (s *Server) truncate(str string, n int) string {
	if len(str) <= n {
		return str
	}
	return str[:n] + "..."
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// shortVersion extracts a short version string from full version,
// "v1.7.0-abc1234-20241225" -> "v1.7.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
