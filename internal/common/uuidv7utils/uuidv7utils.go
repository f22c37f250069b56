// Package uuidv7utils generates document ids. Ids are UUIDv7 in canonical string form, so
// their lexical order is their creation order.
package uuidv7utils

import (
	"github.com/google/uuid"
)

// NewDocumentId returns a fresh UUIDv7 string.
func NewDocumentId() string {
	id, err := uuid.NewV7()
	if err != nil {
		// only fails when the system random source does
		return uuid.NewString()
	}
	return id.String()
}
