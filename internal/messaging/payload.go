package messaging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is a raw inbound webhook body. It is either a WahaPayload or a TwilioPayload.
type Payload interface {
	Source() Source
	isPayload()
}

// WahaPayload is the JSON body of a WAHA webhook.
type WahaPayload struct {
	Raw json.RawMessage
}

func (WahaPayload) Source() Source { return SourceWaha }
func (WahaPayload) isPayload()     {}

// TwilioPayload is a Twilio webhook form flattened to single values.
type TwilioPayload struct {
	Fields map[string]string
}

func (TwilioPayload) Source() Source { return SourceTwilio }
func (TwilioPayload) isPayload()     {}

// FormToMap keeps the first value of every form key.
func FormToMap(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

// Normalizer converts provider payloads into NormalizedMessage values.
// It never fails: missing fields fall back to defaults.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NewNormalizer returns a normalizer using the wall clock and random ids.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		now: time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
}

var defaultNormalizer = NewNormalizer()

// Normalize converts a payload with the default normalizer.
func Normalize(payload Payload, tenantID string) NormalizedMessage {
	return defaultNormalizer.Normalize(payload, tenantID)
}

// Normalize converts payload into a NormalizedMessage for tenantID.
func (n *Normalizer) Normalize(payload Payload, tenantID string) NormalizedMessage {
	var msg NormalizedMessage
	switch p := payload.(type) {
	case WahaPayload:
		msg = n.normalizeWaha(p.Raw)
	case *WahaPayload:
		msg = n.normalizeWaha(p.Raw)
	case TwilioPayload:
		msg = n.normalizeTwilio(p.Fields)
	case *TwilioPayload:
		msg = n.normalizeTwilio(p.Fields)
	default:
		msg = NormalizedMessage{}
		if payload != nil {
			msg.Source = payload.Source()
		}
	}
	msg.TenantID = tenantID
	n.finish(&msg)
	return msg
}

func (n *Normalizer) finish(msg *NormalizedMessage) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		msg.Text = NoTextSentinel
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = n.now().UTC()
	}
	if strings.TrimSpace(msg.MessageID) == "" {
		source := string(msg.Source)
		if source == "" {
			source = "unknown"
		}
		msg.MessageID = fmt.Sprintf("%s_%d_%s", source, n.now().UnixMilli(), n.newID())
		msg.GeneratedID = true
	}
}

// providerTime interprets a provider timestamp. Values above 1e12 are epoch
// milliseconds, anything else positive is epoch seconds.
func providerTime(value int64) time.Time {
	switch {
	case value <= 0:
		return time.Time{}
	case value > 1_000_000_000_000:
		return time.UnixMilli(value).UTC()
	default:
		return time.Unix(value, 0).UTC()
	}
}
