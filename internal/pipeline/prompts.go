package pipeline

import (
	"fmt"
	"strings"

	"ai-web-studio/internal/models"
)

const (
	structureSystem = "You are an experienced UX/UI designer and web developer."
	markupSystem    = "You are an experienced frontend developer. Write clean, semantic HTML5."
	styleSystem     = "You are an experienced CSS developer. Write modern, responsive CSS."
	scriptSystem    = "You are an experienced JavaScript developer. Write clean, modern vanilla JS."
)

func structurePrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Analyse the user's request and design the structure of a website.\n\n")
	if in.Title != "" {
		fmt.Fprintf(&b, "Project title: %q\n", in.Title)
	}
	fmt.Fprintf(&b, "User request: %q\n\n", in.Prompt)
	b.WriteString("Include the site name, a one or two sentence description, the sections in display order, ")
	b.WriteString("the key features and the target audience. For every section give its type, a title, ")
	b.WriteString("a short description of its content and a unique display order.\n")
	fmt.Fprintf(&b, "Allowed section types: %s.\n", strings.Join(sectionTypeEnum(), ", "))
	b.WriteString("Sections must be coherent and match the request.")
	return b.String()
}

func writeStructure(b *strings.Builder, s models.WebsiteStructure) {
	fmt.Fprintf(b, "Name: %s\nDescription: %s\nTarget audience: %s\n", s.Name, s.Description, s.TargetAudience)
	b.WriteString("Sections:\n")
	for _, sec := range s.Sections {
		desc := sec.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(b, "%d. <section id=%q> %s: %s\n", sec.Order, sec.Type, sec.Title, desc)
	}
	if len(s.Features) > 0 {
		fmt.Fprintf(b, "Features: %s\n", strings.Join(s.Features, "; "))
	}
}

func writePalette(b *strings.Builder, c models.ColorScheme) {
	b.WriteString("Color scheme:\n")
	for _, kv := range c.Entries() {
		fmt.Fprintf(b, "- %s: %s\n", kv[0], kv[1])
	}
}

func markupPrompt(s models.WebsiteStructure, c models.ColorScheme) string {
	var b strings.Builder
	b.WriteString("Generate the HTML document for a website with this structure.\n\n")
	writeStructure(&b, s)
	writePalette(&b, c)
	b.WriteString(`
Requirements:
1. Semantic HTML5 elements, one <section> per listed section using the given id.
2. SEO meta tags.
3. Responsive layout built for CSS Grid and Flexbox.
4. Comments on the key blocks.
5. Font Awesome for icons.
6. A navigation menu with anchor links to every section.
7. Link styles.css and script.js.

Return ONLY the HTML code with no explanations.`)
	return b.String()
}

func stylePrompt(s models.WebsiteStructure, c models.ColorScheme) string {
	var b strings.Builder
	b.WriteString("Write the CSS for a website with this structure.\n\n")
	writeStructure(&b, s)
	writePalette(&b, c)
	b.WriteString(`
Requirements:
1. CSS custom properties for every palette color.
2. Dark theme by default.
3. Smooth hover animations.
4. Breakpoints for mobile, tablet and desktop.
5. Grid and Flexbox layouts.
6. Styles for navigation, buttons and forms.
7. A reset or normalize block.

Return ONLY the CSS code with no explanations.`)
	return b.String()
}

// scriptPrompt only sees the section types.
func scriptPrompt(types []models.SectionType) string {
	names := make([]string, 0, len(types))
	has := map[models.SectionType]bool{}
	for _, t := range types {
		names = append(names, string(t))
		has[t] = true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate the JavaScript for a portfolio website.\n\nThe site has these sections: %s\n\n", strings.Join(names, ", "))
	reqs := []string{
		"Smooth scrolling to anchors.",
		"Reveal animations for elements as they scroll into view.",
	}
	if has[models.SectionContact] {
		reqs = append(reqs, "Contact form handling with client-side validation.")
	}
	reqs = append(reqs, "Interactive portfolio elements.", "Mobile navigation with a burger menu.")
	if has[models.SectionProjects] {
		reqs = append(reqs, "Lazy loading of project cards.")
	}
	b.WriteString("Requirements:\n")
	for i, r := range reqs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\nReturn ONLY the JavaScript code with no explanations.")
	return b.String()
}

// trimCodeFence strips a single surrounding markdown fence from model output.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
