package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// Sanitize strips unsafe markup with the user-generated-content policy. It is
// applied to display names, which are rendered by clients as profile labels.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// NormalizeText trims message text. The body is stored and returned verbatim
// otherwise; an empty result means there is nothing to send.
func NormalizeText(input string) string {
	return strings.TrimSpace(input)
}
