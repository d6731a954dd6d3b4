package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	// TwilioSignatureHeader carries the HMAC-SHA1 request signature.
	TwilioSignatureHeader = "X-Twilio-Signature"
	// WahaHMACHeader carries the hex HMAC-SHA512 of a WAHA webhook body.
	WahaHMACHeader = "X-Webhook-Hmac"
)

// ValidateTwilioSignature validates that a request came from Twilio.
// The form must already be parsed.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	return TwilioSignatureValid(r.Header.Get(TwilioSignatureHeader), authToken, webhookURL, r.PostForm)
}

// TwilioSignatureValid checks signature against the URL and POST params.
func TwilioSignatureValid(signature, authToken, webhookURL string, params url.Values) bool {
	if signature == "" || authToken == "" {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, params), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload concatenates the URL with every key/value pair sorted by key.
func buildSignaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

// SignTwilioRequest returns the X-Twilio-Signature Twilio would send.
func SignTwilioRequest(authToken, webhookURL string, params url.Values) string {
	return computeSignature(buildSignaturePayload(webhookURL, params), authToken)
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ValidateWahaSignature checks the hex HMAC-SHA512 WAHA sends when a webhook HMAC key is configured.
func ValidateWahaSignature(body []byte, signature, key string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || key == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	h := hmac.New(sha512.New, []byte(key))
	h.Write(body)
	return hmac.Equal(got, h.Sum(nil))
}

// SignWahaBody returns the hex signature WAHA would send for body.
func SignWahaBody(body []byte, key string) string {
	h := hmac.New(sha512.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
