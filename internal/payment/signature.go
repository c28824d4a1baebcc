package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureMatches compares a received signature with the expected one in
// constant time. Gateways differ in hex case, so both sides are folded.
func signatureMatches(expected, received string) bool {
	if received == "" {
		return false
	}
	e := []byte(strings.ToLower(expected))
	r := []byte(strings.ToLower(received))
	return subtle.ConstantTimeCompare(e, r) == 1
}

// checkoutLines renders the checkout-* entries of params as sorted
// "key:value" lines, the canonical form Paytrail signs.
func checkoutLines(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "checkout-") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+":"+params[k])
	}
	return strings.Join(lines, "\n")
}

// paytrailSignature is HMAC-SHA256 over the checkout lines followed by the
// request body.
func paytrailSignature(secret string, params map[string]string, body string) string {
	return hmacSHA256Hex(secret, checkoutLines(params)+"\n"+body)
}

// jsonParams flattens a JSON object callback into string values. Numbers keep
// their literal text.
func jsonParams(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

func queryParams(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k := range values {
		out[strings.ToLower(k)] = values.Get(k)
	}
	return out
}

func checkoutHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k := range h {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "checkout-") {
			out[lk] = h.Get(k)
		}
	}
	return out
}

// turkuSignature signs the service provider and timestamp headers together
// with the payload.
func turkuSignature(secret, serviceProvider, timestamp, payload string) string {
	return hmacSHA256Hex(secret, serviceProvider+"\n"+timestamp+"\n"+payload)
}
