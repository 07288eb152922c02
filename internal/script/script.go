// Package script renders the browser snippets that drive each handshake leg.
package script

import (
	"bytes"
	"strconv"
	"text/template"
	"time"
)

// Target selects which window an iframe bootstrap writes into.
type Target int

const (
	// TargetWindow inserts into the parent window's document.
	TargetWindow Target = iota
	// TargetTop inserts into the top-level document, escaping nested frames.
	TargetTop
)

// StatusBanner prefixes the body of a positive status check.
const StatusBanner = "// Starting Domain Mapping SSO"

var templates = template.Must(template.New("script").Parse(`
{{- define "sync" -}}
<script type="text/javascript" src="{{html .URL}}"></script>
{{- end -}}

{{- define "async" -}}
(function(d, t) {
	var g = d.createElement(t),
		s = d.getElementsByTagName(t)[0];
	g.src = '{{js .URL}}';
	g.async = true;
	s.parentNode.insertBefore(g, s);
}(document, 'script'));
{{- end -}}

{{- define "iframe" -}}
(function(window) {
	var document = {{.Document}};
	var url = '{{js .URL}}';
	var iframe = document.createElement('iframe');
	(iframe.frameElement || iframe).style.cssText =
		"width: 0; height: 0; border: 0";
	iframe.src = "javascript:false";
	var where = document.getElementsByTagName('script')[0];
	where.parentNode.insertBefore(iframe, where);
	var doc = iframe.contentWindow.document;
	doc.open().write('<body onload="'+
	'var js = document.createElement(\'script\');'+
	'js.src = \''+ url +'\';'+
	'document.body.appendChild(js);">');
	doc.close();
}({{.Window}}));
{{- end -}}

{{- define "timer" -}}
function domainmap_do_redirect() { window.location = "{{js .URL}}"; }
setTimeout(domainmap_do_redirect, {{.Delay}});
{{- end -}}

{{- define "navigate" -}}
window.location = "{{js .URL}}";
{{- end -}}
`))

const (
	reloadTop       = "window.top.location.reload();"
	triggerRedirect = `if (typeof domainmap_do_redirect === "function") domainmap_do_redirect();`
)

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		panic(err)
	}
	return buf.String()
}

// Renderer emits script tags in the configured loading mode.
type Renderer struct {
	async bool
}

// NewRenderer creates a renderer. With async set, external scripts are
// inserted by a small loader instead of a blocking tag.
func NewRenderer(async bool) *Renderer {
	return &Renderer{async: async}
}

// Async reports the loading mode.
func (r *Renderer) Async() bool {
	return r.async
}

// Tag returns HTML that loads the script at url.
func (r *Renderer) Tag(url string) string {
	if r.async {
		return Wrap(render("async", struct{ URL string }{url}))
	}
	return render("sync", struct{ URL string }{url}) + "\n"
}

// IframeBootstrap returns JavaScript that loads url from inside a hidden
// iframe written into the target window's document.
func IframeBootstrap(url string, target Target) string {
	data := struct{ URL, Document, Window string }{URL: url}
	switch target {
	case TargetTop:
		data.Document = "window.top.document"
		data.Window = "parent.top.window"
	default:
		data.Document = "window.document"
		data.Window = "parent.window"
	}
	return render("iframe", data)
}

// IframeBootstrapTag is IframeBootstrap wrapped in a script element.
func IframeBootstrapTag(url string, target Target) string {
	return Wrap(IframeBootstrap(url, target))
}

// StatusResponse is the body answering a positive status check: the banner
// followed by a top-window bootstrap of url.
func StatusResponse(url string) string {
	return StatusBanner + "\n" + IframeBootstrap(url, TargetTop) + "\n"
}

// RedirectTimer returns JavaScript defining domainmap_do_redirect and
// scheduling it after delay.
func RedirectTimer(url string, delay time.Duration) string {
	return render("timer", struct {
		URL   string
		Delay string
	}{url, strconv.FormatInt(delay.Milliseconds(), 10)})
}

// ReloadTop reloads the top-level document.
func ReloadTop() string {
	return reloadTop
}

// TriggerRedirect fires a pending redirect timer immediately.
func TriggerRedirect() string {
	return triggerRedirect
}

// Navigate sends the window to url.
func Navigate(url string) string {
	return render("navigate", struct{ URL string }{url})
}

// Wrap places body inside an inline script element.
func Wrap(body string) string {
	return "<script type=\"text/javascript\">\n" + body + "\n</script>\n"
}
