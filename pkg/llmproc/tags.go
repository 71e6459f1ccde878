package llmproc

import (
	"regexp"
	"strings"
)

var (
	endCallTag  = regexp.MustCompile(`\[END_CALL\]`)
	transferTag = regexp.MustCompile(`\[TRANSFER\]`)
	dtmfTag     = regexp.MustCompile(`\[DTMF:([0-9*#]+)\]`)
)

// stripTags removes the control tags spec.md §4.8 defines, recording
// their side effects onto outcome, and returns the cleaned text.
func stripTags(text string, outcome *Outcome) string {
	if endCallTag.MatchString(text) {
		outcome.ShouldHangup = true
		text = endCallTag.ReplaceAllString(text, "")
	}
	if transferTag.MatchString(text) {
		outcome.ShouldTransfer = true
		text = transferTag.ReplaceAllString(text, "")
	}
	if m := dtmfTag.FindStringSubmatch(text); m != nil {
		outcome.DTMFDigits = m[1]
		text = dtmfTag.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
