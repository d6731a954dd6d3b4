package messaging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// wahaContainerKeys are the nested objects WAHA variants put the message in,
// in lookup order. The root object is tried last.
var wahaContainerKeys = []string{"payload", "message", "data"}

// wahaMediaKinds maps WhatsApp message structures to media types.
var wahaMediaKinds = []struct {
	key  string
	kind MediaType
}{
	{"imageMessage", MediaImage},
	{"videoMessage", MediaVideo},
	{"audioMessage", MediaAudio},
	{"documentMessage", MediaDocument},
	{"stickerMessage", MediaImage},
}

type jsonObject map[string]any

func decodeObject(raw []byte) jsonObject {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return jsonObject{}
	}
	return out
}

func (o jsonObject) object(keys ...string) jsonObject {
	cur := o
	for _, key := range keys {
		if cur == nil {
			return nil
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// str returns the value at the path as a string. Numbers are formatted, other types yield "".
func (o jsonObject) str(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	parent := o.object(keys[:len(keys)-1]...)
	if parent == nil {
		return ""
	}
	switch v := parent[keys[len(keys)-1]].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (o jsonObject) boolean(keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	parent := o.object(keys[:len(keys)-1]...)
	if parent == nil {
		return false
	}
	switch v := parent[keys[len(keys)-1]].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func (o jsonObject) integer(keys ...string) int64 {
	raw := o.str(keys...)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

func (n *Normalizer) normalizeWaha(raw json.RawMessage) NormalizedMessage {
	root := decodeObject(raw)
	c := selectWahaContainer(root)

	msg := NormalizedMessage{
		Source:    SourceWaha,
		From:      phoneFromChatID(wahaSender(c)),
		Text:      wahaText(c),
		MessageID: wahaMessageID(c),
		Timestamp: providerTime(wahaTimestamp(c)),
		FromMe:    c.boolean("fromMe") || c.boolean("key", "fromMe"),
	}
	msg.MediaURL, msg.MediaType = wahaMedia(c)
	return msg
}

// selectWahaContainer prefers a candidate with both sender and text, then any
// candidate with a sender, then the root.
func selectWahaContainer(root jsonObject) jsonObject {
	candidates := make([]jsonObject, 0, len(wahaContainerKeys)+1)
	for _, key := range wahaContainerKeys {
		if c := root.object(key); c != nil {
			candidates = append(candidates, c)
		}
	}
	candidates = append(candidates, root)

	for _, c := range candidates {
		if wahaSender(c) != "" && wahaText(c) != "" {
			return c
		}
	}
	for _, c := range candidates {
		if wahaSender(c) != "" {
			return c
		}
	}
	return root
}

func wahaSender(c jsonObject) string {
	if from := c.str("from"); from != "" {
		return from
	}
	return c.str("key", "remoteJid")
}

// wahaText walks the text locations in precedence order. Captions come last
// so they never shadow a plain body.
func wahaText(c jsonObject) string {
	paths := [][]string{
		{"body"},
		{"text"},
		{"text", "body"},
		{"message", "conversation"},
		{"message", "extendedTextMessage", "text"},
		{"message", "imageMessage", "caption"},
		{"message", "videoMessage", "caption"},
		{"message", "documentMessage", "caption"},
	}
	for _, path := range paths {
		if text := c.str(path...); text != "" {
			return text
		}
	}
	return ""
}

func wahaMessageID(c jsonObject) string {
	if id := c.str("id"); id != "" {
		return id
	}
	if id := c.str("id", "_serialized"); id != "" {
		return id
	}
	if id := c.str("id", "id"); id != "" {
		return id
	}
	return c.str("key", "id")
}

func wahaTimestamp(c jsonObject) int64 {
	if ts := c.integer("timestamp"); ts > 0 {
		return ts
	}
	return c.integer("messageTimestamp")
}

func wahaMedia(c jsonObject) (string, MediaType) {
	url := c.str("media", "url")
	if url == "" {
		url = c.str("mediaUrl")
	}
	mime := c.str("media", "mimetype")
	if mime == "" {
		mime = c.str("mimetype")
	}

	var structural MediaType
	for _, mk := range wahaMediaKinds {
		node := c.object("message", mk.key)
		if node == nil {
			continue
		}
		structural = mk.kind
		if url == "" {
			url = jsonObject(node).str("url")
		}
		if mime == "" {
			mime = jsonObject(node).str("mimetype")
		}
		break
	}

	if url == "" && structural == MediaNone && !c.boolean("hasMedia") {
		return "", MediaNone
	}
	if kind := mediaTypeFromContentType(mime); kind != MediaNone {
		return url, kind
	}
	if structural != MediaNone {
		return url, structural
	}
	if kind := declaredMediaType(c.str("type")); kind != MediaNone {
		return url, kind
	}
	if url != "" {
		return url, MediaDocument
	}
	return "", MediaNone
}
