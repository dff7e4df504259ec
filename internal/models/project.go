package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Project statuses.
const (
	ProjectDraft      = "draft"
	ProjectGenerating = "generating"
	ProjectReady      = "ready"
	ProjectFailed     = "failed"
)

// Technology stacks a project may target.
const (
	TechStackStatic    = "static"
	TechStackFullstack = "fullstack"
)

// Field limits enforced on creation.
const (
	MaxTitleLength  = 200
	MinPromptLength = 10
	MaxPromptLength = 5000
	MaxErrorLength  = 1000
)

// DefaultColorSchemeHint is used when a project is created without a hint.
const DefaultColorSchemeHint = "dark"

// Project is a unit of work owned by a user. Artifact fields are written only
// together with the transition to ready.
type Project struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Title           string            `json:"title"`
	Prompt          string            `json:"prompt"`
	TechStack       string            `json:"tech_stack"`
	ColorSchemeHint string            `json:"color_scheme_hint"`
	Status          string            `json:"status"`
	Error           *string           `json:"error,omitempty"`
	Structure       *WebsiteStructure `json:"structure,omitempty"`
	ColorScheme     *ColorScheme      `json:"color_scheme,omitempty"`
	Markup          string            `json:"markup,omitempty"`
	Stylesheet      string            `json:"stylesheet,omitempty"`
	Script          string            `json:"script,omitempty"`
	BackendCode     string            `json:"backend_code,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// HasArtifacts reports whether any generated content is present.
func (p Project) HasArtifacts() bool {
	return p.Structure != nil || p.ColorScheme != nil || p.Markup != "" || p.Stylesheet != "" || p.Script != "" || p.BackendCode != ""
}

// NewProjectParams are the caller-supplied fields of a project.
type NewProjectParams struct {
	Title           string `json:"title"`
	Prompt          string `json:"prompt"`
	TechStack       string `json:"tech_stack"`
	ColorSchemeHint string `json:"color_scheme_hint"`
}

// Normalize trims input and fills defaults, then validates it.
func (p *NewProjectParams) Normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.TechStack = strings.ToLower(strings.TrimSpace(p.TechStack))
	p.ColorSchemeHint = strings.TrimSpace(p.ColorSchemeHint)
	if p.TechStack == "" {
		p.TechStack = TechStackStatic
	}
	if p.ColorSchemeHint == "" {
		p.ColorSchemeHint = DefaultColorSchemeHint
	}

	if p.Title == "" {
		return Invalid("title", "is required")
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return Invalid("title", "must be at most 200 characters")
	}
	n := utf8.RuneCountInString(p.Prompt)
	if n < MinPromptLength || n > MaxPromptLength {
		return Invalid("prompt", "must be between 10 and 5000 characters")
	}
	switch p.TechStack {
	case TechStackStatic, TechStackFullstack:
	default:
		return Invalid("tech_stack", "must be static or fullstack")
	}
	return nil
}

// Truncate bounds s to max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
