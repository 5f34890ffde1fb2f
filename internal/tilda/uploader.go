package tilda

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// FileFetcher downloads a file received by the chat transport
type FileFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// ImageUploader moves a chat photo to Tilda hosting
type ImageUploader struct {
	files  FileFetcher
	client *Client
}

// NewImageUploader creates a new uploader
func NewImageUploader(files FileFetcher, client *Client) *ImageUploader {
	return &ImageUploader{files: files, client: client}
}

// Upload fetches the photo and returns its hosted URL
func (u *ImageUploader) Upload(ctx context.Context, fileID string) (string, error) {
	data, err := u.files.Fetch(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	return u.client.UploadImage(ctx, uuid.NewString()+".jpg", data)
}
