package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Upload is a file received from a client, fully buffered.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Uploader stores a file and returns a reference to it.
type Uploader interface {
	Upload(ctx context.Context, file Upload, folder string) (string, error)
}

var ErrUploadsDisabled = errors.New("file uploads are not configured")

type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryService{
		cld: cld,
	}, nil
}

func (s *CloudinaryService) Upload(ctx context.Context, file Upload, folder string) (string, error) {
	if len(file.Content) == 0 {
		return "", errors.New("empty upload")
	}

	uploadResult, err := s.cld.Upload.Upload(ctx, bytes.NewReader(file.Content), uploader.UploadParams{
		Folder:       folder,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if uploadResult.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", uploadResult.Error.Message)
	}

	return uploadResult.SecureURL, nil
}
