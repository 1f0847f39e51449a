package chat

import (
	"strings"
	"testing"
)

func TestValidateMessage_Valid(t *testing.T) {
	if err := ValidateMessage("hello there"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateMessage_Empty(t *testing.T) {
	if err := ValidateMessage(""); err == nil {
		t.Error("empty message should be rejected")
	}
}

func TestValidateMessage_TooManyBytes(t *testing.T) {
	msg := strings.Repeat("a", MaxMessageBytes+1)
	if err := ValidateMessage(msg); err == nil {
		t.Error("oversized message should be rejected")
	}
}

func TestValidateMessage_TooManyChars(t *testing.T) {
	// Multibyte runes: under the byte limit but over the character limit.
	msg := strings.Repeat("é", MaxTextChars+1)
	if len(msg) > MaxMessageBytes {
		t.Fatalf("test setup: message should stay under byte limit, got %d bytes", len(msg))
	}
	if err := ValidateMessage(msg); err == nil {
		t.Error("message over the character limit should be rejected")
	}
}

func TestValidateMessage_InvalidUTF8(t *testing.T) {
	if err := ValidateMessage("hello\xff\xfe"); err == nil {
		t.Error("invalid UTF-8 should be rejected")
	}
}

func TestValidateMessage_ExactLimits(t *testing.T) {
	if err := ValidateMessage(strings.Repeat("a", MaxTextChars)); err != nil {
		t.Errorf("message at the character limit should pass: %v", err)
	}
}
