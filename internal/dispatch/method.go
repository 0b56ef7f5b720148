package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Method is a sharing channel.
type Method string

const (
	MethodEmail     Method = "email"
	MethodWhatsApp  Method = "whatsapp"
	MethodReception Method = "reception"
)

// ErrUnknownMethod is returned for a channel outside Methods().
var ErrUnknownMethod = errors.New("unknown share method")

// Methods lists the supported channels.
func Methods() []Method {
	return []Method{MethodEmail, MethodWhatsApp, MethodReception}
}

// ParseMethod matches s case-insensitively against the supported channels.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodEmail, MethodWhatsApp, MethodReception:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}
