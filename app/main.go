package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/lorawiz/app/dataset"
	"github.com/umputun/lorawiz/app/notify"
	"github.com/umputun/lorawiz/app/preset"
	"github.com/umputun/lorawiz/app/service"
	"github.com/umputun/lorawiz/app/web"
)

var opts struct {
	Host      string `long:"host" env:"HOST" default:"0.0.0.0" description:"listen host"`
	Port      int    `long:"port" env:"PORT" default:"7860" description:"listen port"`
	Dest      string `long:"dest" env:"LORAWIZ_DEST" default:"datasets" description:"initial destination directory"`
	Presets   string `long:"presets" env:"LORAWIZ_PRESETS" description:"yaml file with additional presets"`
	UploadDir string `long:"upload-dir" env:"LORAWIZ_UPLOAD_DIR" description:"directory for uploaded archives, default in temp dir"`
	MaxUpload int64  `long:"max-upload" env:"LORAWIZ_MAX_UPLOAD" default:"1073741824" description:"max upload size in bytes"`
	Dbg       bool   `long:"dbg" env:"LORAWIZ_DEBUG" description:"debug mode"`

	Run struct {
		Epochs      int           `long:"epochs" env:"EPOCHS" default:"3" description:"simulated epochs"`
		Steps       int           `long:"steps" env:"STEPS" default:"5" description:"simulated steps per epoch"`
		Delay       time.Duration `long:"delay" env:"DELAY" default:"100ms" description:"pause after each step"`
		Concurrency int           `long:"concurrency" env:"CONCURRENCY" default:"4" description:"parallel file writes on extraction"`
		LogPrefix   bool          `long:"log-prefix" env:"LOG_PREFIX" description:"prefix run output with dataset name"`
		MaxLogLines int           `long:"max-log" env:"MAX_LOG" default:"100" description:"max number of run log lines in failure notification"`
	} `group:"run" namespace:"run" env-namespace:"LORAWIZ_RUN"`

	Web struct {
		BaseURL     string        `long:"base-url" env:"BASE_URL" description:"base url path for reverse proxy, e.g. /lorawiz"`
		RateLimit   float64       `long:"rate-limit" env:"RATE_LIMIT" default:"1" description:"run submissions per second per client, 0 disables"`
		HistoryTTL  time.Duration `long:"history-ttl" env:"HISTORY_TTL" default:"1h" description:"keep finished runs in history"`
		CleanupSpec string        `long:"cleanup" env:"CLEANUP" default:"@every 10m" description:"history cleanup schedule"`
		Hostname    string        `long:"hostname" env:"HOSTNAME" description:"hostname to show in the UI"`
	} `group:"web" namespace:"web" env-namespace:"LORAWIZ_WEB"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"write logs to rotated file instead of stdout"`
		Filename        string `long:"filename" env:"FILENAME" default:"lorawiz.log" description:"log file"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep old log files, 0 keeps all"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max old log files"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"LORAWIZ_LOG"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"how many times to try notification delivery"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"LORAWIZ_REPEATER"`

	Notify struct {
		EnabledError       bool          `long:"enabled-error" env:"ENABLED_ERROR" description:"enable notifications on failed runs"`
		EnabledCompletion  bool          `long:"enabled-complete" env:"ENABLED_COMPLETE" description:"enable notifications on completed runs"`
		SMTPHost           string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort           int           `long:"smtp-port" env:"SMTP_PORT" description:"SMTP port"`
		SMTPUsername       string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword       string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS            bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPTimeOut        time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail          string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails           []string      `long:"to" env:"TO" description:"SMTP to email(s)" env-delim:","`
		Webhook            string        `long:"webhook" env:"WEBHOOK" description:"webhook url"`
		WebhookHeaders     []string      `long:"webhook-header" env:"WEBHOOK_HEADER" description:"webhook header, Header:value" env-delim:","`
		ErrorTemplate      string        `long:"err-template" env:"ERR_TEMPLATE" description:"custom failure message template file"`
		CompletionTemplate string        `long:"done-template" env:"DONE_TEMPLATE" description:"custom completion message template file"`
		Timeout            time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"notification delivery timeout"`
		HostName           string        `long:"host" env:"HOSTNAME" description:"host name in notifications"`
	} `group:"notify" namespace:"notify" env-namespace:"LORAWIZ_NOTIFY"`
}

var revision = "unknown"

func main() {
	fmt.Printf("lorawiz %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	logWriter := setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if err := run(ctx, logWriter); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logWriter io.Writer) error {
	presets := preset.Builtin()
	if opts.Presets != "" {
		var err error
		if presets, err = preset.LoadFile(opts.Presets); err != nil {
			return fmt.Errorf("can't load presets: %w", err)
		}
	}
	log.Printf("[INFO] %d presets loaded, default %s", presets.Len(), presets.Default())

	runner := &service.Runner{
		Extractor:       dataset.New(opts.Run.Concurrency),
		Epochs:          opts.Run.Epochs,
		Steps:           opts.Run.Steps,
		Delay:           opts.Run.Delay,
		DeDup:           service.NewDeDup(),
		NotifyTimeout:   opts.Notify.Timeout,
		HostName:        makeHostName(),
		Stdout:          logWriter,
		EnableLogPrefix: opts.Run.LogPrefix,
		MaxLogLines:     opts.Run.MaxLogLines,
		Repeater: repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
			Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter}),
	}
	if notifier := makeNotifier(); notifier != nil {
		runner.Notifier = notifier
	}

	hostname := opts.Web.Hostname
	if hostname == "" {
		hostname = makeHostName()
	}
	uploadDir := opts.UploadDir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "lorawiz-uploads")
	}

	srv, err := web.New(web.Config{
		Runner:      runner,
		Presets:     presets,
		DestDir:     opts.Dest,
		UploadDir:   uploadDir,
		MaxUpload:   opts.MaxUpload,
		BaseURL:     validateBaseURL(opts.Web.BaseURL),
		Hostname:    hostname,
		Version:     revision,
		RateLimit:   opts.Web.RateLimit,
		HistoryTTL:  opts.Web.HistoryTTL,
		CleanupSpec: opts.Web.CleanupSpec,
	})
	if err != nil {
		return fmt.Errorf("can't make web server: %w", err)
	}

	return srv.Run(ctx, net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
}

// makeNotifier returns nil if notifications disabled or no destinations set
func makeNotifier() *notify.Service {
	if !opts.Notify.EnabledError && !opts.Notify.EnabledCompletion {
		return nil
	}

	if opts.Notify.FromEmail == "" {
		opts.Notify.FromEmail = "lorawiz@" + makeHostName()
	}

	return notify.NewService(
		notify.Params{
			EnabledError:       opts.Notify.EnabledError,
			EnabledCompletion:  opts.Notify.EnabledCompletion,
			ErrorTemplate:      opts.Notify.ErrorTemplate,
			CompletionTemplate: opts.Notify.CompletionTemplate,
			HostName:           makeHostName(),
		},
		notify.SendersParams{
			SMTPParams: gonotify.SMTPParams{
				Host:        opts.Notify.SMTPHost,
				Port:        opts.Notify.SMTPPort,
				TLS:         opts.Notify.SMTPTLS,
				ContentType: "text/html",
				Username:    opts.Notify.SMTPUsername,
				Password:    opts.Notify.SMTPPassword,
				TimeOut:     opts.Notify.SMTPTimeOut,
			},
			FromEmail:      opts.Notify.FromEmail,
			ToEmails:       opts.Notify.ToEmails,
			WebhookURL:     opts.Notify.Webhook,
			WebhookHeaders: opts.Notify.WebhookHeaders,
			WebhookTimeout: opts.Notify.Timeout,
		},
	)
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// setupLogs configures logger and returns writer for run output, rotated file if logging to file enabled
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.Msec, log.LevelBraces, log.CallerFile, log.CallerFunc}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	out := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	log.Setup(append(logOpts, log.Out(out), log.Err(out))...)
	return out
}

// validateBaseURL normalizes base url path, "/" and "" mean root
func validateBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ""
	}
	if !strings.HasPrefix(baseURL, "/") {
		baseURL = "/" + baseURL
	}
	return baseURL
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
}
