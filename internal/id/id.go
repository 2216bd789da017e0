package id

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxExtensionLen = 10

func New() string {
	return uuid.NewString()
}

// StagingName names the temporary copy of an upload, keeping the original
// extension when it is a plain alphanumeric suffix.
func StagingName(originalName string) string {
	return New() + Extension(originalName)
}

func ArtifactName(ext string) string {
	return New() + ext
}

// Extension returns the lower-cased extension of name including the dot, or
// "" when the extension is missing or contains anything but letters and digits.
func Extension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.TrimSpace(name))))
	if len(ext) < 2 || len(ext) > maxExtensionLen+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
