// Package id generates the request identifiers propagated across the agent
// execution boundary.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRequestID generates a request identifier with a stable prefix for display.
// The time component keeps identifiers roughly sortable in log output.
func NewRequestID() string {
	return newIdentifier("req")
}

// NewTripID generates a trip identifier.
func NewTripID() string {
	return newIdentifier("trip")
}

func newIdentifier(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}
