package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeGateway serves just enough of the auth and REST APIs for a login session.
func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	var registered atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/token":
			_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","user":{"id":"u1","email":"ada@example.com"}}`))
		case r.URL.Path == "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer jwt" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"invalid token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com"}`))
		case r.URL.Path == "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/rest/v1/users" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			registered.Store(true)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("[" + string(body) + "]"))
		case r.URL.Path == "/rest/v1/users":
			if !registered.Load() {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"u1","name":"ada","email":"ada@example.com","role":"user"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T, url string) {
	t.Helper()
	t.Setenv("SUPABASE_URL", url)
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SUPABASE_RETRY_ENABLED", "false")
	t.Setenv("PREFS_BACKEND", "sqlite")
	t.Setenv("PREFS_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCmd(t)
	if code != 2 || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("run() = %d, stderr %q", code, stderr)
	}
	code, _, stderr = runCmd(t, "frobnicate")
	if code != 2 || !strings.Contains(stderr, `unknown command "frobnicate"`) {
		t.Fatalf("run(frobnicate) = %d, stderr %q", code, stderr)
	}
	if code, _, _ := runCmd(t, "-o", "xml", "chats"); code != 2 {
		t.Fatalf("run(-o xml) = %d", code)
	}
}

func TestRun_CompletionNeedsNoConfig(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	code, stdout, stderr := runCmd(t, "completion", "bash")
	if code != 0 {
		t.Fatalf("completion = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "complete -F") || !strings.Contains(stdout, "notifications") {
		t.Fatalf("unexpected script:\n%s", stdout)
	}
	if code, _, _ := runCmd(t, "completion"); code != 2 {
		t.Fatalf("completion without shell = %d", code)
	}
}

func TestRun_RequiresLogin(t *testing.T) {
	setupEnv(t, fakeGateway(t).URL)

	code, _, stderr := runCmd(t, "chats")
	if code != 1 || !strings.Contains(stderr, "not logged in") {
		t.Fatalf("chats = %d, stderr %q", code, stderr)
	}
}

func TestRun_FlagValidation(t *testing.T) {
	setupEnv(t, fakeGateway(t).URL)

	code, _, stderr := runCmd(t, "send", "-chat", "c1")
	if code != 2 || !strings.Contains(stderr, "-chat and -text are required") {
		t.Fatalf("send = %d, stderr %q", code, stderr)
	}
}

func TestRun_LoginSession(t *testing.T) {
	setupEnv(t, fakeGateway(t).URL)

	code, stdout, stderr := runCmd(t, "login", "-email", "ada@example.com", "-password", "pw")
	if code != 0 {
		t.Fatalf("login = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "Logged in as ada <ada@example.com>") {
		t.Fatalf("login output %q", stdout)
	}

	code, stdout, stderr = runCmd(t, "-o", "json", "whoami")
	if code != 0 || !strings.Contains(stdout, `"Name": "ada"`) {
		t.Fatalf("whoami = %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	code, stdout, _ = runCmd(t, "chats")
	if code != 0 || !strings.Contains(stdout, "No chats") {
		t.Fatalf("chats = %d, stdout %q", code, stdout)
	}

	code, stdout, _ = runCmd(t, "notifications")
	if code != 0 || !strings.Contains(stdout, "No notifications") {
		t.Fatalf("notifications = %d, stdout %q", code, stdout)
	}

	if code, _, stderr := runCmd(t, "metrics"); code != 0 {
		t.Fatalf("metrics = %d, stderr %q", code, stderr)
	}

	code, stdout, _ = runCmd(t, "logout")
	if code != 0 || !strings.Contains(stdout, "Logged out") {
		t.Fatalf("logout = %d, stdout %q", code, stdout)
	}
	if code, _, _ := runCmd(t, "whoami"); code != 1 {
		t.Fatalf("whoami after logout = %d", code)
	}
}
