package runtime

import (
	"log/slog"
	"secure-chat/moderation"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/gabriel-vasile/mimetype"
)

// Decoder turns an inbound frame into a chat payload.
type Decoder struct {
	log    *slog.Logger
	filter *moderation.Filter
}

// NewDecoder builds a decoder. filter may be nil to disable censoring.
func NewDecoder(log *slog.Logger, filter *moderation.Filter) Decoder {
	return Decoder{log: log, filter: filter}
}

// Decode returns the payload to broadcast and false when the frame must be dropped:
// empty after cleanup, or binary content. Valid UTF-8 without NUL bytes is
// always text, whatever it starts with.
func (d Decoder) Decode(frame string) (string, bool) {
	if !isText(frame) {
		d.log.Debug("Non text frame dropped", "mime", mimetype.Detect([]byte(frame)).String())
		return "", false
	}
	payload := sanitize(frame)
	if strings.TrimSpace(payload) == "" {
		return "", false
	}
	if d.filter == nil {
		return payload, true
	}

	result := d.filter.Apply(payload)
	if result.Censored() {
		d.log.Info("Payload censored",
			"words", result.Hits,
			"lang", whatlanggo.Detect(payload).Lang.Iso6391())
	}
	return result.Text, true
}

// isText accepts valid UTF-8 lines. Other frames are judged by their content
// type: text/plain and every type deriving from it (json, html, csv...).
func isText(frame string) bool {
	if utf8.ValidString(frame) && !strings.ContainsRune(frame, 0) {
		return true
	}
	for mtype := mimetype.Detect([]byte(frame)); mtype != nil; mtype = mtype.Parent() {
		if mtype.Is("text/plain") {
			return true
		}
	}
	return false
}

func sanitize(frame string) string {
	valid := strings.ToValidUTF8(frame, "")
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, valid)
}
