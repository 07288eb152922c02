package server

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
)

//go:embed templates/login.html
var loginPageTemplateHTML string

//go:embed templates/page.html
var sitePageTemplateHTML string

var loginPageTemplate = template.Must(template.New("login").Parse(loginPageTemplateHTML))
var sitePageTemplate = template.Must(template.New("page").Parse(sitePageTemplateHTML))

// LoginPageData represents the data for the login page
type LoginPageData struct {
	SiteName   string
	Action     string
	Login      string
	RedirectTo string
	CSRFToken  string
	Message    string
	Error      string
	ShowForm   bool
}

// SitePageData represents the data for a site page
type SitePageData struct {
	SiteName  string
	Host      string
	UserID    string
	LoginURL  string
	LogoutURL string
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s page: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
