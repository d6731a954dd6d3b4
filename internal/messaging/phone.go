package messaging

import "strings"

// sanitizePhone keeps only the digits of value.
func sanitizePhone(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneFromChatID extracts the digits of a WhatsApp chat id such as
// "15551234567:12@c.us" or "15551234567@s.whatsapp.net".
func phoneFromChatID(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		chatID = chatID[:i]
	}
	if i := strings.IndexByte(chatID, ':'); i >= 0 {
		chatID = chatID[:i]
	}
	return sanitizePhone(chatID)
}

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// NormalizeDestination strips everything except digits and '+' from an outbound destination.
func NormalizeDestination(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// destinationDigits returns the digits of a normalized destination.
func destinationDigits(dest string) string {
	return strings.ReplaceAll(dest, "+", "")
}
