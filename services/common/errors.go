// Package common holds the errors and helpers shared by the domain services.
package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/social_layer/internal/database"
)

// ErrForbidden is returned when the acting user may not perform an operation.
var ErrForbidden = errors.New("forbidden")

// Forbiddenf builds an ErrForbidden error.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ImageExtension maps an image content type to the file extension used in storage paths.
func ImageExtension(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := imageExtensions[ct]
	if !ok {
		return "", database.Invalidf("unsupported image type %q", contentType)
	}
	return ext, nil
}
