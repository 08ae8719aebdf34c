package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxMessageLength = 10000
	maxTagLength     = 64
	maxNameLength    = 128
)

// ValidateMessageText validates optional message text.
func ValidateMessageText(text string) error {
	if len(text) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateTag validates a conversation tag.
func ValidateTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("tag cannot be empty")
	}
	if len(tag) > maxTagLength {
		return errors.New("tag exceeds maximum length")
	}
	if !utf8.ValidString(tag) {
		return errors.New("tag must be valid UTF-8")
	}
	return nil
}

// ValidateName validates a display name.
func ValidateName(name string) error {
	if len(name) > maxNameLength {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}
