package models

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// TokenPrefix starts every correlation token.
const TokenPrefix = "req_"

// NewToken returns a fresh correlation token. ULIDs sort by creation time,
// which keeps tokens ordered like the run that issued them.
func NewToken() string {
	return TokenPrefix + strings.ToLower(ulid.Make().String())
}

// TokenLine is the tagged line embedded verbatim in every outbound body.
func TokenLine(token string) string {
	return "[Request ID: " + token + "]"
}
