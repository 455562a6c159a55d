package flow

import "strings"

const (
	tokenPrefix    = "EMERGENCY:"
	memberIDPrefix = "LT-"
)

// MemberIDFromToken extracts the member identity carried by the flow token.
// Tokens arrive either as "EMERGENCY:LT-2025-A7X9K3" or as the bare member
// id. An unrecognized token yields "", which the caller treats as an unknown
// member rather than an error: the bystander must never be blocked on it.
func MemberIDFromToken(token string) string {
	token = strings.TrimSpace(token)
	if rest, ok := strings.CutPrefix(token, tokenPrefix); ok {
		return strings.TrimSpace(rest)
	}
	if strings.HasPrefix(token, memberIDPrefix) {
		return token
	}
	return ""
}
