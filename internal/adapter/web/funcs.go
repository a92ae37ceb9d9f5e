package web

import (
	"html/template"

	"agenthub/internal/session"
)

var funcs = template.FuncMap{
	"isDark": func(t session.Theme) bool { return t != session.ThemeLight },
}
