package validate

import (
	"fmt"
	"regexp"
)

// UserID must be a non-empty identifier of letters, digits, hyphen or
// underscore, at most 64 bytes.
var userIDRx = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

var runIDRx = regexp.MustCompile(`^[0-9a-fA-F\-]{36}$`)

const maxMessageBytes = 2000

func UserID(v string) error {
	if v == "" {
		return fmt.Errorf("userId is required")
	}
	if !userIDRx.MatchString(v) {
		return fmt.Errorf("userId must match %s", userIDRx.String())
	}
	return nil
}

func RunID(v string) error {
	if v == "" {
		return fmt.Errorf("runId is required")
	}
	if !runIDRx.MatchString(v) {
		return fmt.Errorf("runId must be a UUID")
	}
	return nil
}

// MessageText bounds inbound chat messages.
func MessageText(v string) error {
	if v == "" {
		return fmt.Errorf("text is required")
	}
	if len(v) > maxMessageBytes {
		return fmt.Errorf("text exceeds %d bytes", maxMessageBytes)
	}
	return nil
}

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
