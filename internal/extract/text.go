package extract

import (
	"context"
	"strings"
)

// Text accepts plain UTF-8; invalid sequences are dropped.
type Text struct{}

func (Text) Extract(_ context.Context, data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}
