package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"civicportal/models"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxImageBytes is the upload ceiling used when none is configured.
const DefaultMaxImageBytes int64 = 5000000

// image family by lowercase extension
var extFamilies = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
}

// image family by media type
var mimeFamilies = map[string]string{
	"image/jpeg":  "jpeg",
	"image/jpg":   "jpeg",
	"image/pjpeg": "jpeg",
	"image/png":   "png",
	"image/gif":   "gif",
}

// Upload is a single file received from a client.
type Upload struct {
	Reader   io.Reader
	Name     string
	MimeType string
	Size     int64
}

// ImageUploader validates uploads as jpg/jpeg/png/gif images and stores accepted ones.
type ImageUploader struct {
	store    FileStore
	maxBytes int64
}

func NewImageUploader(store FileStore, maxBytes int64) *ImageUploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageUploader{store: store, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted upload.
func (u *ImageUploader) MaxBytes() int64 { return u.maxBytes }

// Accept validates up and stores it, returning the relative URL path of the stored file.
// Errors wrap models.ErrInvalidFileType or models.ErrFileTooLarge for rejected uploads.
func (u *ImageUploader) Accept(ctx context.Context, up Upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.Name))
	family, ok := extFamilies[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q is not allowed", models.ErrInvalidFileType, ext)
	}
	if declared := mimeFamily(up.MimeType); declared != family {
		return "", fmt.Errorf("%w: declared type %q does not match %s", models.ErrInvalidFileType, up.MimeType, ext)
	}
	if up.Size > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", models.ErrFileTooLarge, up.Size, u.maxBytes)
	}

	// The declared size is client supplied, so the read itself is capped too.
	data, err := io.ReadAll(io.LimitReader(up.Reader, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > u.maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes", models.ErrFileTooLarge, u.maxBytes)
	}

	detected := mimetype.Detect(data)
	if mimeFamily(detected.String()) != family {
		return "", fmt.Errorf("%w: content is %s", models.ErrInvalidFileType, detected.String())
	}

	return u.store.Save(ctx, bytes.NewReader(data), FileMeta{
		Ext:         ext,
		ContentType: detected.String(),
		Size:        int64(len(data)),
	})
}

// Remove deletes a stored upload.
func (u *ImageUploader) Remove(ctx context.Context, urlPath string) error {
	return u.store.Remove(ctx, urlPath)
}

func mimeFamily(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mimeFamilies[strings.ToLower(mediaType)]
}
