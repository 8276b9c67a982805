package usecase

import (
	"bytes"
	"embed"
	"fmt"
	htmlTemplate "html/template"
	"strings"
	textTemplate "text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"go-payment-service/domain"
	"go-payment-service/pkg/log"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

type RendererConfig struct {
	AppName      string
	AppURL       string
	SupportEmail string
}

// Rendered is one email ready to be sent.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type kindTemplates struct {
	subject *textTemplate.Template
	html    *htmlTemplate.Template
	text    *textTemplate.Template
}

var subjects = map[domain.NotificationKind]struct {
	file    string
	subject string
}{
	domain.NotificationPasswordReset:          {"password_reset", "Reset your password - {{.app_name}}"},
	domain.NotificationPaymentConfirmation:    {"payment_confirmation", "We received your payment for {{.course_title}}"},
	domain.NotificationEnrollmentConfirmation: {"enrollment_confirmation", "Welcome to {{.course_title}}"},
}

type TemplateRenderer struct {
	config    RendererConfig
	templates map[domain.NotificationKind]*kindTemplates
	printer   *message.Printer
	logger    log.Logger
	now       func() time.Time
}

// NewTemplateRenderer parses every embedded template up front so a broken
// template stops the worker at startup.
func NewTemplateRenderer(config RendererConfig, logger log.Logger) (*TemplateRenderer, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	funcMap := map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	templates := make(map[domain.NotificationKind]*kindTemplates, len(subjects))
	for kind, def := range subjects {
		subject, err := textTemplate.New("subject").Funcs(funcMap).Parse(def.subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template of %s: %w", kind, err)
		}
		html, err := htmlTemplate.New(def.file+".html").Funcs(funcMap).ParseFS(templateFS, "templates/"+def.file+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse html template of %s: %w", kind, err)
		}
		text, err := textTemplate.New(def.file+".txt").Funcs(funcMap).ParseFS(templateFS, "templates/"+def.file+".txt")
		if err != nil {
			return nil, fmt.Errorf("failed to parse text template of %s: %w", kind, err)
		}
		templates[kind] = &kindTemplates{subject: subject, html: html, text: text}
	}

	return &TemplateRenderer{
		config:    config,
		templates: templates,
		printer:   message.NewPrinter(language.Indonesian),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Render fills the templates of kind. data carries the kind specific fields;
// the application fields are added here.
func (r *TemplateRenderer) Render(kind domain.NotificationKind, data map[string]any) (*Rendered, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return nil, domain.ErrUnknownNotificationKind.WithReasonf("no template for %q", kind)
	}

	merged := map[string]any{
		"app_name":      r.config.AppName,
		"app_url":       r.config.AppURL,
		"support_email": r.config.SupportEmail,
		"current_year":  r.now().Year(),
	}
	for k, v := range data {
		merged[k] = v
	}

	var subject, html, text bytes.Buffer
	if err := tmpl.subject.Execute(&subject, merged); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.html.Execute(&html, merged); err != nil {
		return nil, fmt.Errorf("failed to render html content: %w", err)
	}
	if err := tmpl.text.Execute(&text, merged); err != nil {
		return nil, fmt.Errorf("failed to render text content: %w", err)
	}

	r.logger.Debug("Template rendered successfully",
		log.JobKind(string(kind)),
		log.Int("subject_length", subject.Len()),
		log.Int("content_length", html.Len()),
	)
	return &Rendered{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// FormatAmount renders an amount in rupiah, e.g. "Rp250.000".
func (r *TemplateRenderer) FormatAmount(amount int64) string {
	return r.printer.Sprintf("Rp%d", amount)
}
