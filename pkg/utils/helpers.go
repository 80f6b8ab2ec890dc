package utils

import (
	"errors"
	"os"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

const DefaultSemaphoreLimit = 20

// ErrInvalidID is returned when an identifier used as a path component
// contains characters outside [A-Za-z0-9_.-] or is a relative path element.
var ErrInvalidID = errors.New("identifier contains invalid characters")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// GetSemaphoreLimit returns the semaphore limit from environment variable or default
func GetSemaphoreLimit() int {
	val := os.Getenv("SEMAPHORE_LIMIT")
	if val == "" {
		return DefaultSemaphoreLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultSemaphoreLimit
	}
	return limit
}

// GenerateUUID returns a new random UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

// ValidateID checks that id can be used as a single path component.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}
