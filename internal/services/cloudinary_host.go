package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// assetUploader is the part of the Cloudinary upload API the host uses.
type assetUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

type CloudinaryHost struct {
	upload assetUploader
	folder string
}

func NewCloudinaryHost(cloudName, apiKey, apiSecret, folder string) (*CloudinaryHost, error) {
	if cloudName == "" {
		return nil, fmt.Errorf("cloudinary cloud_name is not configured")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cannot init cloudinary: %w", err)
	}
	return &CloudinaryHost{upload: &cld.Upload, folder: folder}, nil
}

// Upload sends the image as a data URI. The delete token stands in for the
// management URL; Cloudinary produces no separate thumbnail.
func (h *CloudinaryHost) Upload(ctx context.Context, base64Image string) (*HostedImage, error) {
	payload := base64Image
	if !isDataURI(payload) {
		raw, err := decodeImage(base64Image)
		if err != nil {
			return nil, &UploadError{Message: "Invalid image data", Err: err}
		}
		payload = "data:" + http.DetectContentType(raw) + ";base64," + base64Image
	}

	res, err := h.upload.Upload(ctx, payload, uploader.UploadParams{
		Folder:            h.folder,
		ReturnDeleteToken: api.Bool(true),
	})
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	if res.Error.Message != "" {
		return nil, &UploadError{Message: res.Error.Message}
	}
	if res.SecureURL == "" {
		return nil, &UploadError{Message: "Failed to upload image to Cloudinary"}
	}

	img := &HostedImage{URL: res.SecureURL}
	if tok := deleteToken(res.Response); tok != "" {
		img.DeleteURL = &tok
	}
	return img, nil
}

// deleteToken reads delete_token from the raw response, which the SDK keeps
// as a map or a pointer to one.
func deleteToken(raw interface{}) string {
	var fields map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		fields = v
	case *map[string]interface{}:
		if v != nil {
			fields = *v
		}
	}
	tok, _ := fields["delete_token"].(string)
	return tok
}
