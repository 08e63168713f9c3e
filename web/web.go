package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var Static embed.FS

var funcs = template.FuncMap{
	// toJSON embeds a value into a <script> block
	"toJSON": func(v interface{}) (template.JS, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return template.JS(b), nil
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"hasItems": func(items []string) bool {
		return len(items) > 0
	},
}

// Templates parses every page template. Each page defines its own top-level
// name and pulls in the shared layout blocks.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}
