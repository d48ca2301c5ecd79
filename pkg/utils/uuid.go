package utils

import "github.com/google/uuid"

// GenerateUUID returns a random UUID string for run identifiers.
func GenerateUUID() string {
	return uuid.New().String()
}

// ShortID returns the first 8 hex characters of a UUID, used in
// diagnostic file names where the full UUID would be unwieldy.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
