package httputil

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestCombine(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"https://api.x.com/", "/v1/chat", "https://api.x.com/v1/chat"},
		{"https://api.x.com", "v1/chat", "https://api.x.com/v1/chat"},
		{"https://api.x.com/", "", "https://api.x.com"},
	}
	for _, c := range cases {
		got := Combine(c.a, c.b)
		if got != c.want {
			t.Errorf("Combine(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
		if strings.Contains(strings.TrimPrefix(got, "https://"), "//") {
			t.Errorf("Combine(%q, %q) = %q contains //", c.a, c.b, got)
		}
	}
}

func TestEnsureSegment(t *testing.T) {
	if got := EnsureSegment("https://api.x.com", "/v1"); got != "https://api.x.com/v1" {
		t.Errorf("got %q", got)
	}
	if got := EnsureSegment("https://api.x.com/V1", "/v1"); got != "https://api.x.com/V1" {
		t.Errorf("ensure segment should be case-insensitive no-op, got %q", got)
	}
}

func TestToWebSocketUrl(t *testing.T) {
	got, err := ToWebSocketUrl("https://x.com/a")
	if err != nil || got != "wss://x.com/a" {
		t.Fatalf("got %q, %v", got, err)
	}
	again, err := ToWebSocketUrl(got)
	if err != nil || again != got {
		t.Errorf("ToWebSocketUrl not idempotent: %q -> %q", got, again)
	}
	if _, err := ToWebSocketUrl("ftp://x.com"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestAppendQueryString(t *testing.T) {
	got := AppendQueryString("https://x.com/v1", map[string]string{"api-version": "2024-01-01", "empty": ""})
	if !strings.Contains(got, "api-version=2024-01-01") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "empty") {
		t.Errorf("empty value should be skipped: %q", got)
	}
}

func TestSignSigV4SampleVector(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://bedrock.us-east-1.amazonaws.com/", nil)
	if err != nil {
		t.Fatal(err)
	}
	now, err := time.Parse("20060102T150405Z", "20230101T000000Z")
	if err != nil {
		t.Fatal(err)
	}
	creds := SigV4Credentials{
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}
	if err := SignSigV4(req, nil, creds, "us-east-1", "bedrock", now); err != nil {
		t.Fatal(err)
	}
	auth := req.Header.Get("Authorization")
	want := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20230101/us-east-1/bedrock/aws4_request"
	if !strings.HasPrefix(auth, want) {
		t.Errorf("authorization header = %q, want prefix %q", auth, want)
	}
}

func TestRetryDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	if d := p.Delay(0); d != time.Second {
		t.Errorf("delay(0) = %v, want 1s", d)
	}
	if d := p.Delay(10); d != p.MaxDelay {
		t.Errorf("delay(10) = %v, want capped at %v", d, p.MaxDelay)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, s := range []int{408, 429, 500, 503} {
		if !IsRetryableStatus(s) {
			t.Errorf("status %d should be retryable", s)
		}
	}
	for _, s := range []int{400, 404, 501, 505} {
		if IsRetryableStatus(s) {
			t.Errorf("status %d should not be retryable", s)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	d, ok := RetryAfter("120", time.Now())
	if !ok || d != 120*time.Second {
		t.Errorf("got %v, %v", d, ok)
	}
}

func TestRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(2 * time.Minute).Format(http.TimeFormat)
	d, ok := RetryAfter(future, now)
	if !ok || d <= 0 {
		t.Errorf("got %v, %v", d, ok)
	}
}
