package parse

import (
	"regexp"
	"strings"
)

const forwardMarker = "------ Forwarded message ---------"

var wroteLinePattern = regexp.MustCompile(`(?m)^On .* <.*>\s+wrote:`)

// Boilerplate injected by voice-mail/SMS email gateways. Lines starting with
// any of these are dropped from the body.
var boilerplatePrefixes = []string{
	"<https://voice.google.com>",
	"YOUR ACCOUNT <https://voice.google.com> HELP CENTER",
	"<https://support.google.com/voice#topic=1707989> HELP FORUM",
	"<https://productforums.google.com/forum/#!forum/voice>",
	"This email was sent to you because you indicated that you'd like to receive",
	"email notifications for text messages. If you don't want to receive such",
	"emails in the future, please update your email notification settings",
	"<https://voice.google.com/settings#messaging>.",
	"Google LLC",
	"1600 Amphitheatre Pkwy",
	"Mountain View CA 94043 USA",
}

// StripQuotes removes quoted and forwarded history from a plain-text body:
// everything from the first forwarded-message marker or "On ... <...> wrote:"
// line onward is dropped, then known gateway boilerplate lines are filtered
// out. The result is trimmed of surrounding whitespace.
func StripQuotes(body string) string {
	if idx := strings.Index(body, forwardMarker); idx >= 0 {
		body = body[:idx]
	}
	if loc := wroteLinePattern.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}

	var kept []string
	for _, line := range strings.Split(body, "\n") {
		if isBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isBoilerplate(line string) bool {
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
