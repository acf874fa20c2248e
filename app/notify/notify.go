// Package notify delivers run completion and failure messages over email and webhooks
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports github.com/go-pkgz/notify Notifier

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Service sends html messages to all configured destinations
type Service struct {
	Params
	destinations []notify.Notifier
	fromEmail    string
	toEmail      []string
	webhookURL   string
}

// Params of notification content
type Params struct {
	EnabledError       bool
	EnabledCompletion  bool
	ErrorTemplate      string // optional file with custom error template
	CompletionTemplate string // optional file with custom completion template
	HostName           string
}

// SendersParams defines destinations, email is enabled by ToEmails, webhook by WebhookURL
type SendersParams struct {
	SMTPParams     notify.SMTPParams
	FromEmail      string
	ToEmails       []string
	WebhookURL     string
	WebhookHeaders []string // "Header:value" pairs
	WebhookTimeout time.Duration
}

// NewService makes notification service, returns nil if no destinations set
func NewService(p Params, sp SendersParams) *Service {
	res := Service{Params: p, fromEmail: sp.FromEmail, toEmail: sp.ToEmails, webhookURL: sp.WebhookURL}
	if len(sp.ToEmails) > 0 {
		smtpParams := sp.SMTPParams
		if smtpParams.ContentType == "" {
			smtpParams.ContentType = "text/html"
		}
		res.destinations = append(res.destinations, notify.NewEmail(smtpParams))
	}
	if sp.WebhookURL != "" {
		res.destinations = append(res.destinations,
			notify.NewWebhook(notify.WebhookParams{Timeout: sp.WebhookTimeout, Headers: sp.WebhookHeaders}))
	}
	if len(res.destinations) == 0 {
		return nil
	}
	log.Printf("[INFO] notifications enabled, destinations: %d, on error: %v, on completion: %v",
		len(res.destinations), p.EnabledError, p.EnabledCompletion)
	return &res
}

// Send message to all destinations. Errors of failed destinations are joined
func (s *Service) Send(ctx context.Context, subj, text string) error {
	var errs []error
	for _, dest := range s.destinations {
		target := s.webhookURL
		if dest.Schema() == "mailto" {
			target = fmt.Sprintf("mailto:%s?from=%s&subject=%s", strings.Join(s.toEmail, ","), s.fromEmail, url.QueryEscape(subj))
		}
		if err := dest.Send(ctx, target, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsOnError status enabling on-error notification
func (s *Service) IsOnError() bool { return s.EnabledError }

// IsOnCompletion status enabling on-completion notification
func (s *Service) IsOnCompletion() bool { return s.EnabledCompletion }

// MakeErrorHTML renders failure message with run log
func (s *Service) MakeErrorHTML(datasetPath, model, errorLog string) (string, error) {
	return s.render(s.ErrorTemplate, "error.html.tmpl", message{
		Dataset: datasetPath, Model: model, Log: errorLog, Host: s.HostName, TS: time.Now()})
}

// MakeCompletionHTML renders completion message with run summary
func (s *Service) MakeCompletionHTML(datasetPath, model, summary string) (string, error) {
	return s.render(s.CompletionTemplate, "completion.html.tmpl", message{
		Dataset: datasetPath, Model: model, Summary: summary, Host: s.HostName, TS: time.Now()})
}

type message struct {
	Dataset string
	Model   string
	Summary string
	Log     string
	Host    string
	TS      time.Time
}

// render executes custom template file if set and valid, embedded default otherwise
func (s *Service) render(customFile, defaultName string, data message) (string, error) {
	if customFile != "" {
		res, err := renderFile(customFile, data)
		if err == nil {
			return res, nil
		}
		log.Printf("[WARN] can't use template %s, fallback to default, %v", customFile, err)
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/"+defaultName)
	if err != nil {
		return "", fmt.Errorf("can't parse message template: %w", err)
	}
	buf := bytes.Buffer{}
	if err = tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

func renderFile(fname string, data message) (string, error) {
	body, err := os.ReadFile(fname) //nolint:gosec // template file set by admin
	if err != nil {
		return "", fmt.Errorf("can't read %s: %w", fname, err)
	}
	tmpl, err := template.New("msg").Parse(string(body))
	if err != nil {
		return "", fmt.Errorf("can't parse %s: %w", fname, err)
	}
	buf := bytes.Buffer{}
	if err = tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply %s: %w", fname, err)
	}
	return buf.String(), nil
}
