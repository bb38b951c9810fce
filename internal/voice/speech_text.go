package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var speechURLPattern = regexp.MustCompile(`https?://\S+`)

var speechWords = strings.NewReplacer(
	"&", " and ",
	"%", " percent",
	"+", " plus ",
)

// speechText prepares text for narration: URLs go, a few symbols are spelled
// out, emoji and other pictographs are dropped and whitespace is collapsed.
func speechText(raw string) string {
	raw = speechURLPattern.ReplaceAllString(strings.TrimSpace(raw), " ")
	raw = speechWords.Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	space := true
	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return strings.TrimSpace(b.String())
}
