package robotsguard

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDisallowsBlockedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	}))
	defer srv.Close()

	guard := Fetch(srv.Client(), srv.URL+"/robots.txt", "sitearchiver-bot")

	if guard.Allowed("/private/secret") {
		t.Errorf("expected /private/secret to be disallowed")
	}
	if !guard.Allowed("/public/page") {
		t.Errorf("expected /public/page to be allowed")
	}
}

func TestFetchFailureFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	guard := Fetch(srv.Client(), srv.URL+"/robots.txt", "sitearchiver-bot")

	if !guard.Allowed("/anything") {
		t.Errorf("expected a broken robots.txt to fail open")
	}
}

func TestFetchUnreachableFailsOpen(t *testing.T) {
	guard := Fetch(http.DefaultClient, "http://127.0.0.1:1/robots.txt", "sitearchiver-bot")
	if !guard.Allowed("/anything") {
		t.Errorf("expected an unreachable host to fail open")
	}
}

func TestAllowAllAllowsEverything(t *testing.T) {
	guard := AllowAll("sitearchiver-bot")
	if !guard.Allowed("/private/secret") {
		t.Errorf("AllowAll guard should admit every path")
	}
}

func TestNilGuardAllowsEverything(t *testing.T) {
	var guard *Guard
	if !guard.Allowed("/anything") {
		t.Errorf("nil guard should fail open")
	}
}
