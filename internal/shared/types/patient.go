package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// PatientRef is an opaque patient identifier supplied by the caller.
// The platform never interprets it; storage and lookups key on its hash
// so the raw identifier does not appear in indexes or event streams.
type PatientRef string

// NewPatientRef validates and returns a patient reference
func NewPatientRef(s string) (PatientRef, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("patient reference is empty")
	}
	if len(trimmed) > 256 {
		return "", fmt.Errorf("patient reference exceeds 256 characters")
	}
	return PatientRef(trimmed), nil
}

// String returns the raw reference
func (p PatientRef) String() string {
	return string(p)
}

// IsZero checks if the reference is empty
func (p PatientRef) IsZero() bool {
	return p == ""
}

// Hash returns the hex-encoded SHA-256 of the reference, used as the
// storage key for directives and audit correlation.
func (p PatientRef) Hash() string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])
}
