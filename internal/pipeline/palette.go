package pipeline

import (
	"context"
	"strings"

	"ai-web-studio/internal/models"
)

// PaletteResolver produces the color scheme for a structure. The default is a
// pure function; an AI-backed resolver can be swapped in without changing Run.
type PaletteResolver interface {
	Resolve(ctx context.Context, hint string, structure models.WebsiteStructure) (models.ColorScheme, error)
}

// DarkPalette is the fixed dark theme.
var DarkPalette = models.ColorScheme{
	Primary:    "#3a86ff",
	Secondary:  "#8338ec",
	Accent:     "#ff006e",
	Background: "#0d1b2a",
	Text:       "#e0e1dd",
}

var darkHints = []string{"dark", "тёмн", "темн"}

// FixedPalette resolves every hint to DarkPalette.
type FixedPalette struct{}

func (FixedPalette) Resolve(_ context.Context, hint string, _ models.WebsiteStructure) (models.ColorScheme, error) {
	if WantsDark(hint) {
		return DarkPalette, nil
	}
	// No light palette exists yet, so every other hint falls back to dark too.
	return DarkPalette, nil
}

// WantsDark reports whether hint expresses a dark-theme intent.
func WantsDark(hint string) bool {
	h := strings.ToLower(hint)
	for _, d := range darkHints {
		if strings.Contains(h, d) {
			return true
		}
	}
	return false
}
