package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier for jobs and assets (32 hex characters).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
