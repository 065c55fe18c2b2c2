package dashboard

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates
var templateFS embed.FS

// pages maps route names to the content template paired with the shared layout.
var pageFiles = map[string]string{
	"home":    "templates/home.html",
	"form":    "templates/form.html",
	"scoring": "templates/scoring.html",
	"explain": "templates/explain.html",
	"compare": "templates/compare.html",
}

// parsePages builds one template set per page, each combining the layout with
// a single content template.
func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, err
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// TemplateFS exposes the raw template filesystem, mainly for tests.
func TemplateFS() (fs.FS, error) {
	return fs.Sub(templateFS, "templates")
}
