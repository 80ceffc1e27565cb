package server

import (
	"html/template"
	"io"
)

// Renderer turns a named template and a flat context into a page.
type Renderer interface {
	Render(w io.Writer, name string, data map[string]any) error
}

// TemplateRenderer renders html/template files loaded once at startup.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses every template matching pattern.
func NewTemplateRenderer(pattern string) (*TemplateRenderer, error) {
	templates, err := template.New("").Funcs(templateFuncs).ParseGlob(pattern)
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: templates}, nil
}

func (r *TemplateRenderer) Render(w io.Writer, name string, data map[string]any) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}
