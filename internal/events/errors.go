package events

import (
	"errors"
	"fmt"
)

// MalformedError reports a schema violation in an inbound message.
// Malformed messages are dropped after acknowledgment; retrying cannot
// fix a schema violation.
type MalformedError struct {
	EventType string
	Reason    string
}

func (e *MalformedError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("malformed event: %s", e.Reason)
	}
	return fmt.Sprintf("malformed %s event: %s", e.EventType, e.Reason)
}

// IsMalformed reports whether err is (or wraps) a MalformedError
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
