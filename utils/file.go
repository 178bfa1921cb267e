package utils

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxImageSize = 5 << 20

var ErrUnsupportedImage = errors.New("image must be a jpg, png or webp file of at most 5 MB")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ImageKey validates an uploaded image and returns a unique object key under prefix,
// e.g. "giveaways/<uuid>.png".
func ImageKey(prefix string, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !imageExtensions[ext] || fh.Size > MaxImageSize {
		return "", ErrUnsupportedImage
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s%s", strings.Trim(prefix, "/"), uuid.NewString(), ext), nil
}
