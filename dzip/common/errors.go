package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Common error types used across the scanning packages
var (
	ErrPathEmpty                 = errors.New("path cannot be empty")
	ErrPathInvalid               = errors.New("path contains invalid characters")
	ErrSourceNotExist            = errors.New("source does not exist")
	ErrNotRegularFile            = errors.New("path is not a regular file")
	ErrTruncated                 = errors.New("value truncated")
	ErrInvalidLength             = errors.New("invalid element length")
	ErrInvalidVR                 = errors.New("invalid value representation")
	ErrNoMetaHeader              = errors.New("file meta information not found")
	ErrUnsupportedTransferSyntax = errors.New("unsupported transfer syntax")
	ErrDepthExceeded             = errors.New("sequence nesting too deep")
	ErrBinaryValue               = errors.New("value is not textual")
)

// ValidationUtils provides common validation utilities used across packages
type ValidationUtils struct{}

// NewValidationUtils creates a new ValidationUtils instance
func NewValidationUtils() *ValidationUtils {
	return &ValidationUtils{}
}

// ValidateInputFile checks that path names an existing regular file
func (vu *ValidationUtils) ValidateInputFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathEmpty
	}
	if strings.Contains(path, "\x00") {
		return ErrPathInvalid
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrSourceNotExist)
		}
		return fmt.Errorf("failed to access file %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", context, err)
}
