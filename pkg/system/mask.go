package system

import "regexp"

var messagePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`client_id["']?\s*[:=]\s*["']?[A-Za-z0-9._]{15,}`), `client_id="` + Masked + `"`},
	{regexp.MustCompile(`client_secret["']?\s*[:=]\s*["']?[A-Za-z0-9._]{15,}`), `client_secret="` + Masked + `"`},
	{regexp.MustCompile(`access_token["']?\s*[:=]\s*["']?[A-Za-z0-9!._]{50,}`), `access_token="` + Masked + `"`},
	{regexp.MustCompile(`\bcode["']?\s*[:=]\s*["']?[A-Za-z0-9%._=]{20,}`), `code="` + Masked + `"`},
	{regexp.MustCompile(`Bearer [A-Za-z0-9!._-]{20,}`), `Bearer ` + Masked},
}

// MaskSensitive masks credential-looking key=value pairs and bearer tokens in free text.
func MaskSensitive(text string) string {
	for _, p := range messagePatterns {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	return text
}

// MaskPrefix keeps the first 8 characters of value, enough to tell consumer keys apart in logs.
func MaskPrefix(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return Masked
	}
	return value[:8] + "..."
}
