package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes the template registered under templateID.
func Render(templateID string, params map[string]any) (string, error) {
	t := templates.Lookup(templateID + ".html")
	if t == nil {
		return "", fmt.Errorf("unknown email template %q", templateID)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render %s: %w", templateID, err)
	}
	return buf.String(), nil
}
