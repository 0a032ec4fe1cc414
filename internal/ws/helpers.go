package ws

import (
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

// bearerToken accepts an Authorization header value or a raw query token.
func bearerToken(header, query string) string {
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(query)
}
