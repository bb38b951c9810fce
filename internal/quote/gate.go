package quote

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinLength    = 10
	MaxLength    = 300
	maxQuotes    = 2
	maxSentences = 4
)

// quoteChars may wrap a model reply; only the double-quote style ones count
// toward the per-text limit so apostrophes in contractions stay legal.
const (
	quoteChars       = "\"'“”‘’«»"
	doubleQuoteChars = "\"“”«»"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\w\s.,!?'\-]`)
	sentenceSplit = regexp.MustCompile(`[.!?]`)

	curlyApostrophe = strings.NewReplacer("‘", "'", "’", "'")
)

var denylist = []string{
	"as an ai",
	"language model",
	"i cannot",
	"i can't help",
	"here is a quote",
	"here's a quote",
	"your daily quote",
	"sorry",
	"hashtag",
	"http",
}

// QualityError rejects a generated text. It is retryable.
type QualityError struct {
	Reason string
	Text   string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quote rejected: %s", e.Reason)
}

// Sanitize normalizes a raw model reply: trim, unwrap one pair of surrounding
// quotation marks, collapse whitespace and drop characters outside the
// allow-list of word characters, whitespace and . , ! ? ' -
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if r, size := utf8.DecodeRuneInString(s); size > 0 && strings.ContainsRune(quoteChars, r) {
		s = s[size:]
	}
	if r, size := utf8.DecodeLastRuneInString(s); size > 0 && strings.ContainsRune(quoteChars, r) {
		s = s[:len(s)-size]
	}
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = curlyApostrophe.Replace(s)
	s = disallowed.ReplaceAllString(s, "")
	// dropped symbols can leave double spaces behind
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Validate applies the quality gate to sanitized text.
func Validate(text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinLength || n > MaxLength {
		return &QualityError{Reason: fmt.Sprintf("length %d outside [%d,%d]", n, MinLength, MaxLength), Text: text}
	}
	lower := strings.ToLower(text)
	for _, term := range denylist {
		if strings.Contains(lower, term) {
			return &QualityError{Reason: fmt.Sprintf("contains denied term %q", term), Text: text}
		}
	}
	first, _ := utf8.DecodeRuneInString(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	if strings.ContainsRune(quoteChars, first) || strings.ContainsRune(quoteChars, last) {
		return &QualityError{Reason: "wrapped in quotation marks", Text: text}
	}
	quotes := 0
	for _, r := range text {
		if strings.ContainsRune(doubleQuoteChars, r) {
			quotes++
		}
	}
	if quotes > maxQuotes {
		return &QualityError{Reason: fmt.Sprintf("%d quotation marks", quotes), Text: text}
	}
	sentences := 0
	for _, frag := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(frag) != "" {
			sentences++
		}
	}
	if sentences > maxSentences {
		return &QualityError{Reason: fmt.Sprintf("%d sentences", sentences), Text: text}
	}
	return nil
}
