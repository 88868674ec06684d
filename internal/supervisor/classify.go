package supervisor

import "strings"

// transientPatterns are error substrings from the chat client's local store
// and crypto layer that clear up on their own.
var transientPatterns = []string{
	"database is locked",
	"sqlcipher",
	"record not found",
	"group is inactive",
	"encryption",
	"decrypt",
	"epoch",
}

// IsTransient reports whether err matches a known benign per-event failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
