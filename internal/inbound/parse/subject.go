package parse

import (
	"regexp"
	"strings"
)

// Reply/forward decoration tokens seen on real inbound mail, covering the
// localized prefixes of the major mail clients.
const decorationToken = `RE?S?|FYI|RIF|I|FS|VB|RV|ENC|ODP|PD|YNT|ILT|SV|VS|VL|AW|WG|ΑΠ|ΣΧΕΤ|ΠΡΘ|תגובה|הועבר|主题|转发|FWD?`

// A decoration is the token plus a separator: "Re:", "FWD -", "AW;", or the
// token alone at end of input.
const decoration = `(?:` + decorationToken + `) *(?:[-:;)\]][ :;\])-]*|$)`

// subjectPattern strips one leading decoration, optionally bracket-wrapped,
// plus an immediately following bracket-wrapped decoration ("Re: [Fwd: ...]"),
// and any matching trailing bracket remnants. It is applied exactly once per
// subject; stacked plain prefixes like "RE: RE: RE:" are not looped.
var subjectPattern = regexp.MustCompile(
	`(?i)^(?:[\[(] *)?` + decoration + `(?:[\[(] *` + decoration + `)?|\]+ *$`)

// NormalizeSubject removes a single leading reply/forward decoration from a
// subject line and trims whitespace. Pure function; empty in, empty out.
func NormalizeSubject(subject string) string {
	return strings.TrimSpace(subjectPattern.ReplaceAllString(subject, ""))
}
