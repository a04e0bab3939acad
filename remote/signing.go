package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// EmulatorKey is the well-known development key of the local storage
// emulator. A client configured with it sends unsigned requests.
const EmulatorKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

// sign computes the shared-key signature for req and sets its
// Authorization header. The canonical form must match the store's
// expectation byte for byte; do not reorder or reformat.
func sign(req *http.Request, account string, key []byte) {
	sts := stringToSign(req, account)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sts))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", "SharedKey "+account+":"+sig)
}

// stringToSign builds the newline-delimited canonical request form:
// method, content length, canonicalized headers, canonicalized resource.
func stringToSign(req *http.Request, account string) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(contentLength(req))
	b.WriteByte('\n')
	b.WriteString(canonicalHeaders(req.Header))
	b.WriteString(canonicalResource(account, req.URL))
	return b.String()
}

// contentLength returns the exact request body length, or the empty string
// for GET and HEAD where length is treated as absent.
func contentLength(req *http.Request) string {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return ""
	}
	n := req.ContentLength
	if n < 0 {
		n = 0
	}
	return strconv.FormatInt(n, 10)
}

// canonicalHeaders renders all request headers as lower-cased "key:value"
// lines, sorted by key in ordinal order, each terminated by a newline.
func canonicalHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToLower(k))
		b.WriteByte(':')
		b.WriteString(h.Get(k))
		b.WriteByte('\n')
	}
	return b.String()
}

// canonicalResource renders "/{account}{path}" followed by one
// "\n{key}:{value}" entry per query parameter, sorted by key.
func canonicalResource(account string, u *url.URL) string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(account)
	b.WriteString(u.EscapedPath())

	params := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(params.Get(k))
	}
	return b.String()
}
