package archive

import "regexp"

type scrubRule struct {
	re          *regexp.Regexp
	replacement string
}

// Order matters: e-mail addresses go first so their digits are never read as
// a phone number, and international numbers before the bare local form.
var scrubRules = []scrubRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\+[0-9]{1,3}(?:[-.\s]?[0-9]{2,4}){2,4}`), "[PHONE]"},
	{regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`), "[PHONE]"},
}

// ScrubPII masks e-mail addresses and phone numbers. Addresses and place
// names stay; responders need them when reading an archived case.
func ScrubPII(text string) string {
	for _, rule := range scrubRules {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}
	return text
}

// ScrubMessages scrubs msgs in place.
func ScrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Text = ScrubPII(msgs[i].Text)
	}
}
