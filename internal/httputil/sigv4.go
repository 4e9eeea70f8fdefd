package httputil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const sigV4Algorithm = "AWS4-HMAC-SHA256"

// SigV4Credentials are the AWS keys used to sign a request.
type SigV4Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string // optional, for STS temporary credentials
}

// SignSigV4 signs req in place per AWS Signature Version 4 (spec §4.B),
// extracted from the Bedrock adapter's original implementation so any
// adapter needing SigV4 can share it. now is injected for testability
// against the spec's worked example.
func SignSigV4(req *http.Request, payload []byte, creds SigV4Credentials, region, service string, now time.Time) error {
	now = now.UTC()
	datestamp := now.Format("20060102")
	amzdate := now.Format("20060102T150405Z")

	req.Header.Set("X-Amz-Date", amzdate)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	req.Header.Set("Host", host)

	payloadHash := sha256Hex(payload)
	canonicalHeaders, signedHeaders := canonicalHeaderSet(req, host, amzdate, creds.SessionToken)

	canonicalURI := req.URL.Path
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", datestamp, region, service)

	stringToSign := strings.Join([]string{
		sigV4Algorithm,
		amzdate,
		credentialScope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretKey, datestamp, region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, creds.AccessKey, credentialScope, signedHeaders, signature,
	))
	return nil
}

// canonicalHeaderSet builds the lowercased, sorted, trimmed canonical
// header block with host always included (spec §4.B step 2).
func canonicalHeaderSet(req *http.Request, host, amzdate, sessionToken string) (headers, signed string) {
	type kv struct{ k, v string }
	set := []kv{
		{"content-type", strings.TrimSpace(req.Header.Get("Content-Type"))},
		{"host", host},
		{"x-amz-date", amzdate},
	}
	if sessionToken != "" {
		set = append(set, kv{"x-amz-security-token", sessionToken})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].k < set[j].k })

	var hb strings.Builder
	names := make([]string, 0, len(set))
	for _, e := range set {
		hb.WriteString(e.k)
		hb.WriteByte(':')
		hb.WriteString(e.v)
		hb.WriteByte('\n')
		names = append(names, e.k)
	}
	return hb.String(), strings.Join(names, ";")
}

func deriveSigningKey(secretKey, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
