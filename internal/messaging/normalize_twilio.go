package messaging

import (
	"strconv"
	"strings"
)

func (n *Normalizer) normalizeTwilio(fields map[string]string) NormalizedMessage {
	get := func(key string) string { return strings.TrimSpace(fields[key]) }

	msg := NormalizedMessage{
		Source: SourceTwilio,
		From:   sanitizePhone(stripWhatsAppPrefix(get("From"))),
		Text:   get("Body"),
	}
	for _, key := range []string{"MessageSid", "SmsMessageSid", "SmsSid"} {
		if sid := get(key); sid != "" {
			msg.MessageID = sid
			break
		}
	}

	numMedia, _ := strconv.Atoi(get("NumMedia"))
	mediaURL := get("MediaUrl0")
	if numMedia > 0 || mediaURL != "" {
		msg.MediaURL = mediaURL
		msg.MediaType = mediaTypeFromContentType(get("MediaContentType0"))
		if msg.MediaType == MediaNone && mediaURL != "" {
			msg.MediaType = MediaDocument
		}
	}
	return msg
}

func stripWhatsAppPrefix(value string) string {
	if len(value) >= len("whatsapp:") && strings.EqualFold(value[:len("whatsapp:")], "whatsapp:") {
		return value[len("whatsapp:"):]
	}
	return value
}
