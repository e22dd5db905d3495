package notification

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

// Kind identifies a notification template.
type Kind string

const (
	KindMFACode       Kind = "mfa_code"
	KindResetPassword Kind = "reset_password"
)

var (
	// ErrUnknownKind is returned for a kind with no registered template.
	ErrUnknownKind = errors.New("notification: unknown kind")
	// ErrInvalidData is returned when template data fails validation.
	ErrInvalidData = errors.New("notification: invalid template data")
)

// MFACodeData is the data of KindMFACode.
type MFACodeData struct {
	Code          string
	ExpiryMinutes int
	// ResetPasswordURL is optional and offered on a principal's first login.
	ResetPasswordURL string
}

// ResetPasswordData is the data of KindResetPassword.
type ResetPasswordData struct {
	ResetPasswordURL string
}

// Template validates, renders and names one kind of notification.
type Template interface {
	Subject() string
	Validate(data any) error
	Render(data any) (string, error)
}

type htmlTemplate[T any] struct {
	subject  string
	tpl      *template.Template
	validate func(T) error
}

func (h *htmlTemplate[T]) Subject() string { return h.subject }

func (h *htmlTemplate[T]) cast(data any) (T, error) {
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: expected %T, got %T", ErrInvalidData, zero, data)
}

func (h *htmlTemplate[T]) Validate(data any) error {
	v, err := h.cast(data)
	if err != nil {
		return err
	}
	if err := h.validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return nil
}

func (h *htmlTemplate[T]) Render(data any) (string, error) {
	v, err := h.cast(data)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := h.tpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s: %w", h.tpl.Name(), err)
	}
	return buf.String(), nil
}

func validateMFACode(d MFACodeData) error {
	if strings.TrimSpace(d.Code) == "" {
		return errors.New("code is required")
	}
	if d.ExpiryMinutes <= 0 {
		return errors.New("expiry minutes must be > 0")
	}
	if d.ResetPasswordURL != "" {
		return validateHTTPURL(d.ResetPasswordURL)
	}
	return nil
}

func validateResetPassword(d ResetPasswordData) error {
	return validateHTTPURL(d.ResetPasswordURL)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http(s)", raw)
	}
	return nil
}

// Registry maps kinds to templates. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[Kind]Template
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[Kind]Template)}
}

// DefaultRegistry returns a Registry with the built-in MFA code and reset
// password templates.
func DefaultRegistry() (*Registry, error) {
	mfaTpl, err := template.ParseFS(templateFS, "templates/mfa_code.html")
	if err != nil {
		return nil, err
	}
	resetTpl, err := template.ParseFS(templateFS, "templates/reset_password.html")
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	r.Register(KindMFACode, &htmlTemplate[MFACodeData]{
		subject:  "Your Login Verification Code",
		tpl:      mfaTpl,
		validate: validateMFACode,
	})
	r.Register(KindResetPassword, &htmlTemplate[ResetPasswordData]{
		subject:  "Reset password instructions",
		tpl:      resetTpl,
		validate: validateResetPassword,
	})
	return r, nil
}

// Register sets the template of kind, replacing any previous one.
func (r *Registry) Register(kind Kind, tpl Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[kind] = tpl
}

// Lookup returns the template of kind.
func (r *Registry) Lookup(kind Kind) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[kind]
	return tpl, ok
}
