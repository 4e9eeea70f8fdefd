// Package httputil holds the URL composition, retry/backoff, timeout, and
// AWS SigV4 signing helpers shared by every provider adapter. Adapters used
// to hand-roll their own base-URL joins (see the teacher's
// gemini.splitBaseURLAndVersion, azure's deployment-path builder, and
// bedrock's endpoint funcs); this package centralizes that so new adapters
// don't reinvent it.
package httputil

import (
	"fmt"
	"net/url"
	"strings"
)

// Combine joins a base URL and a path segment, trimming exactly one
// trailing slash from base and one leading slash from path before joining
// with a single slash. Combine(a, b, c, ...) folds left.
func Combine(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for _, p := range parts[1:] {
		result = combineTwo(result, p)
	}
	return result
}

func combineTwo(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return base
	}
	if base == "" {
		return "/" + path
	}
	return base + "/" + path
}

// AppendQueryString appends key/value pairs to rawURL, preserving an
// existing "?" or introducing one. Empty keys and empty values are
// skipped. Both keys and values are percent-encoded.
func AppendQueryString(rawURL string, params map[string]string) string {
	if len(params) == 0 {
		return rawURL
	}
	var existing string
	base := rawURL
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		base = rawURL[:idx]
		existing = rawURL[idx+1:]
	}

	values, _ := url.ParseQuery(existing)
	if values == nil {
		values = url.Values{}
	}
	for k, v := range params {
		if k == "" || v == "" {
			continue
		}
		values.Set(k, v)
	}
	encoded := values.Encode()
	if encoded == "" {
		return base
	}
	return base + "?" + encoded
}

// EnsureSegment appends segment to base iff base does not already end with
// it (case-insensitive), e.g. EnsureSegment("https://api.x.com", "/v1").
func EnsureSegment(base, segment string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	trimmedSeg := strings.Trim(segment, "/")
	if trimmedSeg == "" {
		return trimmedBase
	}
	if strings.HasSuffix(strings.ToLower(trimmedBase), "/"+strings.ToLower(trimmedSeg)) {
		return trimmedBase
	}
	return trimmedBase + "/" + trimmedSeg
}

// ToWebSocketUrl maps http->ws and https->wss, passing through urls already
// using ws/wss unchanged. It rejects any other scheme.
func ToWebSocketUrl(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("httputil: invalid url %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket, idempotent
	default:
		return "", fmt.Errorf("httputil: unsupported scheme %q for websocket url", u.Scheme)
	}
	return u.String(), nil
}
