package router

import (
	"regexp"
	"strings"

	"parley/models"
)

// Patterns tried in order. Mail clients quote, re-wrap and sometimes mangle
// the tagged line, so the later ones are looser.
var (
	taggedTokenRe = regexp.MustCompile(`(?i)\[Request\s+ID:\s*(req_[\w\-]+)\]`)
	bareTokenRe   = regexp.MustCompile(`\b(req_[\w\-]+)\b`)
	looseTokenRe  = regexp.MustCompile(`(?i)req[_\-]([\w\-]+)`)
)

// ExtractToken finds the correlation token in a reply, or returns "".
// Tokens are issued in lower case, so matches are folded to lower case.
func ExtractToken(text string) string {
	if text == "" {
		return ""
	}
	if m := taggedTokenRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	if m := bareTokenRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	if m := looseTokenRe.FindStringSubmatch(text); m != nil {
		return models.TokenPrefix + strings.ToLower(m[1])
	}
	return ""
}

// TokenFor searches the body first, then the subject.
func TokenFor(msg models.InboundMessage) string {
	return ExtractToken(msg.Body + " " + msg.Subject)
}
