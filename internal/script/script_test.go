package script

import (
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
)

const testURL = "https://example.com/dm-sso-endpoint/1700000000/?dm_action=domainmap-check-login-status&domain=shop.example"

func TestTagSync(t *testing.T) {
	r := NewRenderer(false)
	got := r.Tag(testURL)

	assert.Equal(t,
		`<script type="text/javascript" src="https://example.com/dm-sso-endpoint/1700000000/?dm_action=domainmap-check-login-status&amp;domain=shop.example"></script>`+"\n",
		got)
	assert.False(t, r.Async())
}

func TestTagAsync(t *testing.T) {
	r := NewRenderer(true)
	got := r.Tag(testURL)

	assert.True(t, strings.HasPrefix(got, `<script type="text/javascript">`))
	assert.Contains(t, got, "g.src = '"+template.JSEscapeString(testURL)+"';")
	assert.Contains(t, got, "g.async = true;")
	assert.Contains(t, got, "}(document, 'script'));")
	assert.True(t, strings.HasSuffix(got, "</script>\n"))
}

func TestIframeBootstrapTargets(t *testing.T) {
	win := IframeBootstrap(testURL, TargetWindow)
	assert.Contains(t, win, "var document = window.document;")
	assert.Contains(t, win, "}(parent.window));")
	assert.Contains(t, win, "var url = '"+template.JSEscapeString(testURL)+"';")
	assert.Contains(t, win, `iframe.src = "javascript:false";`)
	assert.Contains(t, win, `"width: 0; height: 0; border: 0"`)
	assert.Contains(t, win, `doc.open().write('<body onload="'+`)
	assert.Contains(t, win, `'js.src = \''+ url +'\';'+`)

	top := IframeBootstrap(testURL, TargetTop)
	assert.Contains(t, top, "var document = window.top.document;")
	assert.Contains(t, top, "}(parent.top.window));")
}

func TestIframeBootstrapEscapesURL(t *testing.T) {
	hostile := "https://example.com/?x=';alert(1);//"
	got := IframeBootstrap(hostile, TargetWindow)
	assert.NotContains(t, got, "?x=';")
	assert.Contains(t, got, `\';alert(1)`)
}

func TestIframeBootstrapTag(t *testing.T) {
	got := IframeBootstrapTag(testURL, TargetWindow)
	assert.True(t, strings.HasPrefix(got, "<script type=\"text/javascript\">\n(function(window) {"))
	assert.True(t, strings.HasSuffix(got, "}(parent.window));\n</script>\n"))
}

func TestStatusResponse(t *testing.T) {
	got := StatusResponse(testURL)
	assert.True(t, strings.HasPrefix(got, StatusBanner+"\n(function(window) {"))
	assert.Contains(t, got, "window.top.document")
}

func TestRedirectTimer(t *testing.T) {
	got := RedirectTimer("https://shop.example/wp-admin/", 5*time.Second)
	assert.Equal(t,
		"function domainmap_do_redirect() { window.location = \"https://shop.example/wp-admin/\"; }\nsetTimeout(domainmap_do_redirect, 5000);",
		got)
}

func TestActionBodies(t *testing.T) {
	assert.Equal(t, "window.top.location.reload();", ReloadTop())
	assert.Equal(t, `if (typeof domainmap_do_redirect === "function") domainmap_do_redirect();`, TriggerRedirect())
	assert.Equal(t, `window.location = "\u003C/script\u003E";`, Navigate("</script>"))
}
