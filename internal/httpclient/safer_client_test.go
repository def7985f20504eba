package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	client := New(30*time.Second, Options{})

	if client.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", client.Timeout)
	}
	if client.maxRedirects != 5 {
		t.Errorf("Expected maxRedirects 5, got %d", client.maxRedirects)
	}
	if !client.blockPrivateIP {
		t.Error("Expected blockPrivateIP to be true")
	}
	if client.allowedHosts != nil {
		t.Error("Expected no host allowlist")
	}
}

func TestValidateURL(t *testing.T) {
	client := New(30*time.Second, Options{AllowedHosts: []string{"openrouter.ai", "example.com", "10.0.0.1", "localhost"}})

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "allowed https host", url: "https://openrouter.ai/api/v1/chat/completions"},
		{name: "host match is case-insensitive", url: "https://OpenRouter.AI/api/v1"},
		{name: "allowed http host", url: "http://example.com"},
		{name: "file scheme", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "ftp scheme", url: "ftp://example.com", errContains: "scheme"},
		{name: "host not on allowlist", url: "https://evil.example", errContains: "not allowed"},
		{name: "userinfo confusion", url: "http://openrouter.ai@evil.example/", errContains: "userinfo"},
		{name: "allowlisted private ip still blocked", url: "http://10.0.0.1/", errContains: "private IP"},
		{name: "allowlisted localhost still blocked", url: "http://localhost:8080/", errContains: "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Expected error containing %q, got %q", tt.errContains, err.Error())
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"8.8.8.8", false},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"2001:db8::1", true},
		{"::ffff:127.0.0.1", true},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.private {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}

func TestForBaseURL(t *testing.T) {
	t.Run("public host blocks private targets", func(t *testing.T) {
		client, err := ForBaseURL(time.Minute, "https://openrouter.ai/api/v1")
		if err != nil {
			t.Fatal(err)
		}
		if !client.blockPrivateIP {
			t.Error("Expected private IP blocking for a public base URL")
		}
		if _, err := client.ValidateURL("https://api.anthropic.com/v1"); err == nil {
			t.Error("Expected other hosts to be rejected")
		}
	})

	t.Run("loopback base URL is reachable", func(t *testing.T) {
		client, err := ForBaseURL(time.Minute, "http://127.0.0.1:9999/v1")
		if err != nil {
			t.Fatal(err)
		}
		if client.blockPrivateIP {
			t.Error("Expected private IP blocking off for a loopback base URL")
		}
		if _, err := client.ValidateURL("http://127.0.0.1:9999/v1/chat/completions"); err != nil {
			t.Errorf("Expected loopback URL to be allowed, got %v", err)
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		if _, err := ForBaseURL(time.Minute, "://nope"); err == nil {
			t.Error("Expected error for unparseable URL")
		}
		if _, err := ForBaseURL(time.Minute, "/relative/only"); err == nil {
			t.Error("Expected error for URL without host")
		}
	})
}

func TestDo_BlocksBeforeDialing(t *testing.T) {
	client := New(time.Second, Options{})
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/", nil)

	_, err := client.Do(req)
	if err == nil || !strings.Contains(err.Error(), "request blocked") {
		t.Fatalf("Expected request to be blocked, got %v", err)
	}
}

func TestRedirectLimit(t *testing.T) {
	hops := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer server.Close()

	blocking := false
	limit := 2
	client := New(5*time.Second, Options{BlockPrivateIP: &blocking, MaxRedirects: &limit})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if err == nil || !strings.Contains(err.Error(), "stopped after 2 redirects") {
		t.Fatalf("Expected redirect limit error, got %v", err)
	}
	if hops != 2 {
		t.Errorf("Expected 2 requests before giving up, got %d", hops)
	}
}

func TestWrapClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Expected wrapped client to reach test server, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
}
