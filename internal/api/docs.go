package api

import (
	"html/template"
	"io"
)

const (
	apiTitle   = "Shotover Settings Agent API"
	apiVersion = "1.0.0"
)

type docsLink struct {
	Href  string
	Label string
}

type docsPage struct {
	Title string
	Links []docsLink
}

// newDocsPage lists the event stream docs only when the stream is served.
func newDocsPage(events bool) docsPage {
	page := docsPage{Title: apiTitle}
	if events {
		page.Links = append(page.Links, docsLink{Href: "/docs/events", Label: "Event Stream Docs"})
	}
	page.Links = append(page.Links, docsLink{Href: "/openapi.json", Label: "OpenAPI JSON"})
	return page
}

func (p docsPage) render(w io.Writer) error {
	return docsTemplate.Execute(w, p)
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    nav.docs-links {
      position: fixed;
      top: 12px;
      right: 16px;
      z-index: 9999;
      display: flex;
      gap: 8px;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      font-size: 12px;
      font-weight: 500;
    }
    nav.docs-links a {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      color: #58a6ff;
      padding: 5px 12px;
      text-decoration: none;
    }
  </style>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <nav class="docs-links">
    {{- range .Links}}
    <a href="{{.Href}}">{{.Label}}</a>
    {{- end}}
  </nav>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`))
