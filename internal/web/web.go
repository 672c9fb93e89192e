package web

import (
	"embed"
	"html/template"
)

// Embed the 'templates' directory.
// The path is relative to this file (internal/web/web.go).
//
//go:embed templates
var Assets embed.FS

// GetTemplatesFS returns the embedded filesystem.
func GetTemplatesFS() embed.FS {
	return Assets
}

// parsePage builds one page template as base layout + page file, parsed
// separately per page so their "content" blocks don't collide.
func parsePage(funcs template.FuncMap, page string) (*template.Template, error) {
	base, err := template.New("base.html").Funcs(funcs).ParseFS(GetTemplatesFS(), "templates/base.html")
	if err != nil {
		return nil, err
	}
	return base.ParseFS(GetTemplatesFS(), "templates/"+page)
}
