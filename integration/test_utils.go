package integration

import (
	"context"
	"encoding/json"
	"html"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgellow/cdsso/internal/ioutil"
)

const (
	listenAddr = "127.0.0.1:18080"
	mainHost   = "network.example.com"
	shopHost   = "shop.example"
	blogHost   = "blog.example"

	testSecret   = "integration-secret-of-at-least-32-bytes"
	testPassword = "correct horse battery"
)

// writeTestConfig writes a config for a network with two mapped domains
// backed by a sqlite registry in a temp dir.
func writeTestConfig(t *testing.T, overrides map[string]any) string {
	t.Helper()
	dir := t.TempDir()

	cfg := map[string]any{
		"version": "cdsso/v1",
		"server": map[string]any{
			"addr":    listenAddr,
			"baseURL": "http://" + mainHost,
		},
		"sso": map[string]any{
			"canonicalHost": mainHost,
			"cleanURLs":     true,
			"tokenTtl":      "60s",
			"secret":        map[string]string{"$env": "CDSSO_SECRET"},
			"sslProbe": map[string]any{
				"timeout": "200ms",
			},
		},
		"replay": map[string]any{"mode": "memory"},
		"registry": map[string]any{
			"kind": "sqlite",
			"dsn":  "file:" + filepath.Join(dir, "registry.db"),
			"domains": []any{
				map[string]any{"domain": shopHost, "siteId": 2},
				map[string]any{"domain": blogHost, "siteId": 3, "active": false},
			},
		},
		"users": []any{
			map[string]any{
				"id":            42,
				"login":         "alice",
				"password":      map[string]string{"$env": "ALICE_PASSWORD"},
				"capabilities":  []string{"read", "edit_posts"},
				"primarySiteId": 2,
			},
		},
		"metrics": map[string]any{"enabled": true},
	}
	for k, v := range overrides {
		cfg[k] = v
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// startCDSSO starts the binary with configPath and stops it when the test ends
func startCDSSO(t *testing.T, configPath string, extraEnv ...string) {
	t.Helper()
	cmd := exec.Command(binaryPath, "-config", configPath)

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env,
		"CDSSO_SECRET="+testSecret,
		"ALICE_PASSWORD="+testPassword,
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	if logFile := os.Getenv("CDSSO_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start cdsso: %v", err)
	}
	t.Cleanup(func() {
		stopCDSSO(cmd)
	})

	waitForCDSSO(t)
}

// stopCDSSO stops the server gracefully, killing it after 5 seconds
func stopCDSSO(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForCDSSO waits for the health endpoint to answer
func waitForCDSSO(t *testing.T) {
	t.Helper()
	for range 20 {
		resp, err := http.Get("http://" + listenAddr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatal("cdsso failed to become ready after 5 seconds")
}

// Browser is an HTTP client that resolves every network host to the test
// server and keeps one cookie jar across them.
type Browser struct {
	t      *testing.T
	client *http.Client
}

func newBrowser(t *testing.T) *Browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, listenAddr)
		},
	}

	return &Browser{
		t: t,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Response is a fully read HTTP response
type Response struct {
	Status int
	Header http.Header
	Body   string
}

func (b *Browser) do(req *http.Request) Response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	return Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   ioutil.ReadLimited(resp.Body, 1<<20),
	}
}

// Get fetches rawURL with the browser cookies
func (b *Browser) Get(rawURL string) Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

// PostForm submits form to rawURL
func (b *Browser) PostForm(rawURL string, form url.Values) Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// Cookie returns the value of the named cookie the jar holds for host
func (b *Browser) Cookie(host, name string) string {
	u := &url.URL{Scheme: "http", Host: host, Path: "/"}
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// Login fills in the login form on host
func (b *Browser) Login(host, password, redirectTo string) Response {
	b.t.Helper()
	loginURL := "http://" + host + "/wp-login.php"

	form := b.Get(loginURL)
	require.Equal(b.t, http.StatusOK, form.Status, "login form: %s", form.Body)
	m := csrfInput.FindStringSubmatch(form.Body)
	require.Len(b.t, m, 2, "no csrf token in login form")

	return b.PostForm(loginURL, url.Values{
		"log":         {"alice"},
		"pwd":         {password},
		"csrf_token":  {html.UnescapeString(m[1])},
		"redirect_to": {redirectTo},
	})
}

var scriptSrc = regexp.MustCompile(`<script type="text/javascript" src="([^"]+)">`)

// scriptURL returns the src of the first external script in body
func scriptURL(t *testing.T, body string) string {
	t.Helper()
	m := scriptSrc.FindStringSubmatch(body)
	require.Len(t, m, 2, "no script tag in %q", body)
	return html.UnescapeString(m[1])
}

var bootstrapURL = regexp.MustCompile(`var url = '((?:[^'\\]|\\.)*)'`)

var jsUnescaper = strings.NewReplacer(
	`\u0026`, "&", `\u003D`, "=", `\u003C`, "<", `\u003E`, ">",
	`\'`, "'", `\"`, `"`, `\\`, `\`,
)

// bootstrapTarget returns the url an inline bootstrap script loads
func bootstrapTarget(t *testing.T, body string) string {
	t.Helper()
	m := bootstrapURL.FindStringSubmatch(body)
	require.Len(t, m, 2, "no bootstrap url in %q", body)
	return jsUnescaper.Replace(m[1])
}
