package core

import "regexp"

// thinkPreamble matches a reasoning block opening the completion, up to and
// including the first closing tag and the whitespace after it.
var thinkPreamble = regexp.MustCompile(`(?s)\A\s*<think>.*?</think>\s*`)

// StripThinkTags removes a leading <think>...</think> block from a completion.
// Text that does not open with the tag, or never closes it, is returned
// unchanged.
func StripThinkTags(s string) string {
	return thinkPreamble.ReplaceAllString(s, "")
}
