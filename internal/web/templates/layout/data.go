package layout

import "myidoru.app/web/internal/web/templates/helpers"

// HTMXScriptURL is the htmx build loaded by every page.
const HTMXScriptURL = "https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js"

const defaultCSRFHeader = "X-CSRF-Token"

// PageData holds the document-level values shared by all pages.
type PageData struct {
	Title      string
	StaticPath string
	CSRFToken  string
	CSRFHeader string
}

func (d PageData) asset(name string) string {
	static := d.StaticPath
	if static == "" {
		static = "/public/static"
	}
	return helpers.JoinPath(static, name)
}

func (d PageData) hxHeaders() string {
	header := d.CSRFHeader
	if header == "" {
		header = defaultCSRFHeader
	}
	return helpers.HXHeaders(map[string]string{header: d.CSRFToken})
}
