package messaging

import (
	"strings"
	"time"
)

// Source identifies which provider produced an inbound message.
type Source string

const (
	SourceWaha   Source = "waha"
	SourceTwilio Source = "twilio"
)

// MediaType is the coarse media classification of an attachment.
type MediaType string

const (
	MediaNone     MediaType = ""
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// NoTextSentinel is stored as the text of messages that carry no readable text.
const NoTextSentinel = "[no text]"

// NormalizedMessage is the provider-independent view of one inbound message.
type NormalizedMessage struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
	// GeneratedID is set when the provider omitted an id and one was synthesized.
	GeneratedID bool      `json:"generatedId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenantId"`
	Source      Source    `json:"source"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	MediaType   MediaType `json:"mediaType,omitempty"`
	// FromMe marks echoes of messages the account itself sent.
	FromMe bool `json:"fromMe,omitempty"`
}

// Actionable reports whether the message has a sender and carries text or media.
func (m NormalizedMessage) Actionable() bool {
	return strings.TrimSpace(m.From) != "" && (m.HasText() || m.HasMedia())
}

// HasText reports whether the message carries readable text.
func (m NormalizedMessage) HasText() bool {
	return m.Text != "" && m.Text != NoTextSentinel
}

// HasMedia reports whether an attachment was found.
func (m NormalizedMessage) HasMedia() bool {
	return m.MediaURL != "" || m.MediaType != MediaNone
}

func mediaTypeFromContentType(contentType string) MediaType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "":
		return MediaNone
	case strings.HasPrefix(ct, "image/"):
		return MediaImage
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo
	case strings.HasPrefix(ct, "audio/"):
		return MediaAudio
	default:
		return MediaDocument
	}
}

// declaredMediaType accepts a provider-declared type only when it falls in the known set.
func declaredMediaType(declared string) MediaType {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "image", "sticker":
		return MediaImage
	case "video":
		return MediaVideo
	case "audio", "ptt", "voice":
		return MediaAudio
	case "document", "file":
		return MediaDocument
	default:
		return MediaNone
	}
}
