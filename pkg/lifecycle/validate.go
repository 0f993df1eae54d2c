package lifecycle

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Recipe-Web-App/session-database-sub000/pkg/errors"
)

const (
	maxOwnerIDLength = 255

	// maxFieldsBytes is the recommended payload ceiling; exceeding it
	// produces a warning, not an error.
	maxFieldsBytes = 1024
)

var ownerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// sensitiveKeyFragments flags payload keys that look like raw credentials.
// Callers are expected to store references, not secrets.
var sensitiveKeyFragments = []string{"password", "token", "secret", "key"}

// validateOwnerID checks the owner ID format: 1-255 characters of
// alphanumerics, hyphens, and underscores.
func validateOwnerID(ownerID string) error {
	if ownerID == "" || len(ownerID) > maxOwnerIDLength {
		return apperrors.NewInvalidArgumentError("owner ID must be 1-255 characters", nil)
	}
	if !ownerIDPattern.MatchString(ownerID) {
		return apperrors.NewInvalidArgumentError(
			"owner ID must contain only alphanumeric characters, hyphens, and underscores", nil)
	}
	return nil
}

// validateRecordID checks that a caller-supplied record ID is a valid UUID.
func validateRecordID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperrors.NewInvalidArgumentError("record ID must be a valid UUID", err)
	}
	return nil
}

// fieldWarnings inspects a record payload and returns advisory warnings:
// oversized payloads and keys that look like they carry raw credentials.
func fieldWarnings(fields map[string]string) []string {
	var warnings []string

	size := 0
	for k, v := range fields {
		size += len(k) + len(v)
	}
	if size > maxFieldsBytes {
		warnings = append(warnings, "record fields exceed recommended limit of 1KB")
	}

	for k := range fields {
		lower := strings.ToLower(k)
		for _, fragment := range sensitiveKeyFragments {
			if strings.Contains(lower, fragment) {
				warnings = append(warnings, "record fields contain potentially sensitive key: "+k)
				break
			}
		}
	}

	return warnings
}
