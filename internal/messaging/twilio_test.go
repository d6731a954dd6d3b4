package messaging

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestTwilioSignatureValid(t *testing.T) {
	params := url.Values{}
	params.Set("From", "whatsapp:+15551234567")
	params.Set("Body", "hi")
	params.Set("MessageSid", "SM1")
	webhookURL := "https://gateway.test/webhooks/twilio/tenant-1"

	sig := computeSignature(buildSignaturePayload(webhookURL, params), "token")
	if !TwilioSignatureValid(sig, "token", webhookURL, params) {
		t.Fatal("expected signature to validate")
	}
	if TwilioSignatureValid(sig, "other-token", webhookURL, params) {
		t.Fatal("expected signature mismatch for different token")
	}
	if TwilioSignatureValid("", "token", webhookURL, params) {
		t.Fatal("empty signature must not validate")
	}
}

func TestValidateTwilioSignatureRequest(t *testing.T) {
	form := url.Values{"Body": {"hello"}, "From": {"whatsapp:+1555"}}
	webhookURL := "https://gateway.test/webhooks/twilio/t"
	req := httptest.NewRequest("POST", "/webhooks/twilio/t", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(TwilioSignatureHeader, computeSignature(buildSignaturePayload(webhookURL, form), "secret"))
	if err := req.ParseForm(); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if !ValidateTwilioSignature(req, "secret", webhookURL) {
		t.Fatal("expected request signature to validate")
	}
}

func TestBuildSignaturePayloadSortsKeys(t *testing.T) {
	params := url.Values{"b": {"2"}, "a": {"1"}}
	if got := buildSignaturePayload("https://x", params); got != "https://xa1b2" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestValidateWahaSignature(t *testing.T) {
	body := []byte(`{"event":"message"}`)
	sig := SignWahaBody(body, "hmac-key")
	if !ValidateWahaSignature(body, sig, "hmac-key") {
		t.Fatal("expected signature to validate")
	}
	if !ValidateWahaSignature(body, strings.ToUpper(sig), "hmac-key") {
		t.Fatal("hex comparison should be case-insensitive")
	}
	if ValidateWahaSignature([]byte(`{"event":"other"}`), sig, "hmac-key") {
		t.Fatal("tampered body must not validate")
	}
	if ValidateWahaSignature(body, "zz", "hmac-key") {
		t.Fatal("invalid hex must not validate")
	}
}
