package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SectionType is the fixed set of page sections a structure may contain.
type SectionType string

const (
	SectionHero         SectionType = "hero"
	SectionAbout        SectionType = "about"
	SectionProjects     SectionType = "projects"
	SectionContact      SectionType = "contact"
	SectionServices     SectionType = "services"
	SectionTestimonials SectionType = "testimonials"
	SectionBlog         SectionType = "blog"
)

// SectionTypes lists every accepted section type in declaration order.
var SectionTypes = []SectionType{
	SectionHero, SectionAbout, SectionProjects, SectionContact,
	SectionServices, SectionTestimonials, SectionBlog,
}

// Valid reports whether t is a known section type.
func (t SectionType) Valid() bool {
	for _, s := range SectionTypes {
		if s == t {
			return true
		}
	}
	return false
}

type Section struct {
	Type        SectionType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Order       int         `json:"order"`
}

// WebsiteStructure is the output of the structure stage.
type WebsiteStructure struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	TargetAudience string    `json:"target_audience"`
	Sections       []Section `json:"sections"`
	Features       []string  `json:"features"`
}

// Normalize validates the structure and sorts sections by display order.
// Order values must be unique.
func (s *WebsiteStructure) Normalize() error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("structure.name", "is required")
	}
	if len(s.Sections) == 0 {
		return Invalid("structure.sections", "must contain at least one section")
	}
	seen := make(map[int]struct{}, len(s.Sections))
	for i, sec := range s.Sections {
		if !sec.Type.Valid() {
			return Invalid(fmt.Sprintf("structure.sections[%d].type", i), fmt.Sprintf("unknown section type %q", sec.Type))
		}
		if _, dup := seen[sec.Order]; dup {
			return Invalid(fmt.Sprintf("structure.sections[%d].order", i), fmt.Sprintf("duplicate order %d", sec.Order))
		}
		seen[sec.Order] = struct{}{}
	}
	sections := append([]Section(nil), s.Sections...)
	sort.Slice(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	s.Sections = sections
	if s.Features == nil {
		s.Features = []string{}
	}
	return nil
}

// SectionTypeList returns the section types in display order.
func (s WebsiteStructure) SectionTypeList() []SectionType {
	out := make([]SectionType, 0, len(s.Sections))
	for _, sec := range s.Sections {
		out = append(out, sec.Type)
	}
	return out
}

// HasSection reports whether any section has type t.
func (s WebsiteStructure) HasSection(t SectionType) bool {
	for _, sec := range s.Sections {
		if sec.Type == t {
			return true
		}
	}
	return false
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ColorScheme is the fixed five-key palette.
type ColorScheme struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
}

// Entries returns the palette as ordered key/value pairs.
func (c ColorScheme) Entries() [][2]string {
	return [][2]string{
		{"primary", c.Primary},
		{"secondary", c.Secondary},
		{"accent", c.Accent},
		{"background", c.Background},
		{"text", c.Text},
	}
}

// Validate checks every key holds a #RRGGBB value.
func (c ColorScheme) Validate() error {
	for _, kv := range c.Entries() {
		if !hexColor.MatchString(kv[1]) {
			return Invalid("color_scheme."+kv[0], fmt.Sprintf("%q is not a #RRGGBB color", kv[1]))
		}
	}
	return nil
}

// Bundle is the complete set of artifacts produced for a project.
type Bundle struct {
	Structure   WebsiteStructure `json:"structure"`
	ColorScheme ColorScheme      `json:"color_scheme"`
	Markup      string           `json:"markup"`
	Stylesheet  string           `json:"stylesheet"`
	Script      string           `json:"script"`
	BackendCode string           `json:"backend_code,omitempty"`
}

// Validate checks a bundle received from outside the local pipeline.
func (b *Bundle) Validate() error {
	if err := b.Structure.Normalize(); err != nil {
		return err
	}
	if err := b.ColorScheme.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.Markup) == "" {
		return Invalid("markup", "is required")
	}
	if strings.TrimSpace(b.Stylesheet) == "" {
		return Invalid("stylesheet", "is required")
	}
	if strings.TrimSpace(b.Script) == "" {
		return Invalid("script", "is required")
	}
	return nil
}
