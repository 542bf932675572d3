package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/geminid/internal/config"
	"github.com/danmuck/geminid/internal/gemini"
	"github.com/danmuck/geminid/internal/testutil/testlog"
	"github.com/danmuck/geminid/internal/testutil/tlstest"
)

type fixture struct {
	svc  *Service
	ca   *tlstest.Authority
	addr string
	stop func()
}

func newContentRoot(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "content-root")
	files := map[string]string{
		"hello.gmi":          "# Hello\nworld\n",
		"greet.form.gmi":     "?Enter name\nHello {INPUT}",
		"docs/a.gmi":         "a\n",
		"docs/b/placeholder": "",
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func testConfig(t *testing.T, ca *tlstest.Authority) config.Config {
	t.Helper()
	certDir := t.TempDir()
	certFile, keyFile := ca.IssueServerCert(t, certDir, "localhost", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})

	cfg := config.Default()
	cfg.ContentRoot = newContentRoot(t)
	cfg.Host = "127.0.0.1"
	cfg.CertFile = certFile
	cfg.KeyFile = keyFile
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func startService(t *testing.T, ca *tlstest.Authority, cfg config.Config) *fixture {
	t.Helper()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln := svc.WrapListener(raw)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()
	f := &fixture{svc: svc, ca: ca, addr: raw.Addr().String()}
	f.stop = func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("serve exit err: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("serve did not stop")
		}
	}
	return f
}

func (f *fixture) dial(t *testing.T) *tls.Conn {
	t.Helper()
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", f.addr, &tls.Config{
		RootCAs:    f.ca.CertPool(),
		ServerName: "localhost",
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func (f *fixture) roundTrip(t *testing.T, raw string) string {
	t.Helper()
	conn := f.dial(t)
	defer conn.Close()
	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(out)
}

func TestServiceServesOverTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	f := startService(t, ca, testConfig(t, ca))
	defer f.stop()

	cases := map[string]string{
		"gemini://localhost/hello.gmi\r\n":          "20 text/gemini\r\n# Hello\nworld\n\r\n",
		"gemini://localhost/missing.gmi\r\n":        "51 not found\r\n",
		"https://localhost/hello.gmi\r\n":           "59 unsupported scheme\r\n",
		"not a url\r\n":                             "59 bad request\r\n",
		"gemini://localhost/../../etc/passwd\r\n":   "59 bad request\r\n",
		"gemini://localhost/greet.form.gmi\r\n":     "10 Enter name\r\n",
		"gemini://localhost/greet.form.gmi?Ada\r\n": "20 text/gemini\r\nHello Ada\r\n",
		"gemini://localhost/docs\r\n":               "20 text/gemini\r\n# docs\n\n=> /docs/a.gmi /docs/a.gmi\n=> /docs/b/ /docs/b/\n\r\n",
	}
	for req, want := range cases {
		if got := f.roundTrip(t, req); got != want {
			t.Fatalf("%q: got %q want %q", req, got, want)
		}
	}
}

func TestServiceClosesSilentlyOnFramingError(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	f := startService(t, ca, testConfig(t, ca))
	defer f.stop()

	if got := f.roundTrip(t, strings.Repeat("a", gemini.MaxRequestLen+2)); got != "" {
		t.Fatalf("expected no response to oversized request, got %q", got)
	}

	conn := f.dial(t)
	if _, err := io.WriteString(conn, "gemini://localhost/hello.gmi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	out, _ := io.ReadAll(conn)
	conn.Close()
	if len(out) != 0 {
		t.Fatalf("expected no response to unterminated request, got %q", out)
	}
}

func TestServiceReadTimeoutClosesIdleClient(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	cfg := testConfig(t, ca)
	cfg.ReadTimeout = 200 * time.Millisecond
	f := startService(t, ca, cfg)
	defer f.stop()

	conn := f.dial(t)
	defer conn.Close()
	start := time.Now()
	out, _ := io.ReadAll(conn)
	if len(out) != 0 {
		t.Fatalf("expected no response, got %q", out)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("idle client held too long: %v", time.Since(start))
	}
}

func TestServiceServeWaitsForHandlers(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	cfg := testConfig(t, ca)
	cfg.ReadTimeout = 10 * time.Second
	f := startService(t, ca, cfg)

	conn := f.dial(t)
	defer conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for f.svc.clientCount.Load() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("handler never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.stop()
	if n := f.svc.clientCount.Load(); n != 0 {
		t.Fatalf("handler still running after Serve returned: active=%d", n)
	}
	f.svc.connsMu.Lock()
	open := len(f.svc.conns)
	f.svc.connsMu.Unlock()
	if open != 0 {
		t.Fatalf("expected no tracked connections, got %d", open)
	}
}

func TestServiceAdmissionLimit(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	cfg := testConfig(t, ca)
	cfg.MaxConnections = 1
	f := startService(t, ca, cfg)
	defer f.stop()

	holder := f.dial(t)
	defer holder.Close()

	done := make(chan string, 1)
	go func() {
		conn, err := tls.Dial("tcp", f.addr, &tls.Config{RootCAs: ca.CertPool(), ServerName: "localhost"})
		if err != nil {
			done <- "dial error: " + err.Error()
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "gemini://localhost/hello.gmi\r\n")
		out, _ := io.ReadAll(conn)
		done <- string(out)
	}()

	select {
	case got := <-done:
		t.Fatalf("second client served while limit held: %q", got)
	case <-time.After(300 * time.Millisecond):
	}

	if _, err := io.WriteString(holder, "gemini://localhost/missing\r\n"); err != nil {
		t.Fatalf("write holder: %v", err)
	}
	_, _ = io.ReadAll(holder)

	select {
	case got := <-done:
		if !strings.HasPrefix(got, "20 text/gemini\r\n") {
			t.Fatalf("unexpected second response: %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("second client never admitted")
	}
}

func TestServicePKCS12Identity(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	cfg := testConfig(t, ca)
	cfg.CertFile = ""
	cfg.KeyFile = ""
	cfg.IdentityFile = ca.IssueServerPKCS12(t, t.TempDir(), "localhost", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")}, "changeit")
	cfg.IdentityPassphrase = "changeit"

	f := startService(t, ca, cfg)
	defer f.stop()

	if got := f.roundTrip(t, "gemini://localhost/hello.gmi\r\n"); !strings.HasPrefix(got, "20 ") {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestLoadIdentityErrors(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	dir := t.TempDir()

	if _, err := LoadIdentity(config.Config{}); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected identity required, got %v", err)
	}
	p12 := ca.IssueServerPKCS12(t, dir, "localhost", []string{"localhost"}, nil, "right")
	if _, err := LoadIdentity(config.Config{IdentityFile: p12, IdentityPassphrase: "wrong"}); err == nil {
		t.Fatalf("expected wrong passphrase rejected")
	}
	cert, err := LoadIdentity(config.Config{IdentityFile: p12, IdentityPassphrase: "right"})
	if err != nil {
		t.Fatalf("load pkcs12: %v", err)
	}
	if len(cert.Certificate) != 2 || cert.Leaf == nil || cert.Leaf.Subject.CommonName != "localhost" {
		t.Fatalf("unexpected chain: %d certs", len(cert.Certificate))
	}
	if _, err := LoadIdentity(config.Config{CertFile: ca.CAFile(), KeyFile: filepath.Join(dir, "missing.key")}); err == nil {
		t.Fatalf("expected missing key rejected")
	}
}

func TestNewServiceRequiresContentRoot(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	cfg := testConfig(t, ca)
	cfg.ContentRoot = filepath.Join(t.TempDir(), "absent")

	if _, err := NewService(cfg); err == nil {
		t.Fatalf("expected missing content root rejected")
	}
}

func TestExchangeWithoutNetwork(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir(), "geminid-test-ca")
	svc, err := NewService(testConfig(t, ca))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	resp, target := svc.Exchange("gopher://localhost/")
	if resp.Status() != gemini.StatusBadRequest || target.Kind.String() != "unresolved" {
		t.Fatalf("unexpected: %d %s", resp.Status(), target.Kind)
	}
	resp, target = svc.Exchange("gemini://localhost/hello.gmi")
	if resp.Status() != gemini.StatusSuccess || target.Kind.String() != "file" {
		t.Fatalf("unexpected: %d %s", resp.Status(), target.Kind)
	}
}

func TestRedactQuery(t *testing.T) {
	if got := redactQuery("gemini://h/login.form.gmi?hunter2"); got != "gemini://h/login.form.gmi?<redacted>" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := redactQuery("gemini://h/"); got != "gemini://h/" {
		t.Fatalf("unexpected: %q", got)
	}
}
