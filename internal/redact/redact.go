package redact

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=\-]{8,}`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|sk-ant|xi)-[A-Za-z0-9_\-]{16,}`)
	awsKeyPattern = regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)
	paramPattern  = regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|signature|x-amz-signature)=[^&\s"']+`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// Secrets masks credentials and account emails that upstream error bodies and
// URLs sometimes echo back.
func Secrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	// API keys before query params so a key inside a param is masked once.
	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = awsKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = paramPattern.ReplaceAllString(out, "$1=[REDACTED]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// String is Secrets without the change flag.
func String(input string) string {
	out, _ := Secrets(input)
	return out
}
