package services

import (
	"context"
	"strings"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

func isUnsafeLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return isUnsafeLikelyOrHigher(r.Adult) || isUnsafeLikelyOrHigher(r.Violence) || isUnsafeLikelyOrHigher(r.Racy)
}

// SafeSearchDetector classifies a hosted image.
type SafeSearchDetector interface {
	Detect(ctx context.Context, imageURL string) (*SafeSearchResult, error)
}

// VisionDetector runs Vision SAFE_SEARCH_DETECTION.
type VisionDetector struct {
	svc *vision.Service
}

// NewVisionDetector uses Application Default Credentials.
func NewVisionDetector(ctx context.Context) (*VisionDetector, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, err
	}
	return &VisionDetector{svc: svc}, nil
}

// Detect accepts gs:// object URIs and public http(s) URLs.
func (d *VisionDetector) Detect(ctx context.Context, imageURL string) (*SafeSearchResult, error) {
	src := &vision.ImageSource{ImageUri: imageURL}
	if strings.HasPrefix(imageURL, "gs://") {
		src = &vision.ImageSource{GcsImageUri: imageURL}
	}

	call := d.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: src},
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	})
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 || resp.Responses[0].SafeSearchAnnotation == nil {
		return &SafeSearchResult{}, nil
	}
	ss := resp.Responses[0].SafeSearchAnnotation

	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}
