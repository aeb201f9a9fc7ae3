package common

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxCaseIDLength bounds case ids; anything longer is rejected at the boundary.
const MaxCaseIDLength = 100

const pdfMagic = "%PDF-"

func caseIDCharOK(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// ValidateCaseID trims and validates a caller-supplied case id. The id is the
// natural deduplication key, so the charset is kept strict.
func ValidateCaseID(caseID string) (string, error) {
	trimmed := strings.TrimSpace(caseID)
	if trimmed == "" {
		return "", NewValidationError("case_id must not be empty", nil)
	}
	if len(trimmed) > MaxCaseIDLength {
		return "", NewValidationError(fmt.Sprintf("case_id too long (max %d characters)", MaxCaseIDLength), nil)
	}
	for _, r := range trimmed {
		if !caseIDCharOK(r) {
			return "", NewValidationError(fmt.Sprintf("case_id contains disallowed character %q", r), nil)
		}
	}
	return trimmed, nil
}

// GenerateCaseID synthesizes a random case id for uploads that arrive without one.
func GenerateCaseID() string {
	return "upload_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// SanitizeFilename strips everything outside the safe charset and forces a
// .pdf extension.
func SanitizeFilename(filename string) (string, error) {
	var b strings.Builder
	for _, r := range filename {
		if caseIDCharOK(r) {
			b.WriteRune(r)
		}
	}
	safe := b.String()
	if safe == "" || strings.Trim(safe, ".") == "" {
		return "", NewValidationError("filename contains no usable characters", nil)
	}
	if !strings.HasSuffix(strings.ToLower(safe), ".pdf") {
		safe += ".pdf"
	}
	return safe, nil
}

// ScratchPath builds a collision-resistant path for an acquired document
// inside dir. The uuid prefix keeps concurrent requests for the same filename
// from clobbering each other.
func ScratchPath(dir, filename string) (string, error) {
	safe, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", NewValidationError("scratch dir is not resolvable", err)
	}
	unique := strings.ReplaceAll(uuid.New().String(), "-", "") + "_" + safe
	path := filepath.Join(abs, unique)
	if !strings.HasPrefix(path, abs+string(filepath.Separator)) {
		return "", NewValidationError("path traversal detected", nil)
	}
	return path, nil
}

// LooksLikePDF checks the magic bytes of a document head. This is a cheap
// precondition check, not a structural validation.
func LooksLikePDF(head []byte) bool {
	return bytes.HasPrefix(head, []byte(pdfMagic))
}
