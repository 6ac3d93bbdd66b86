package ocr

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/vision/v1"
)

// Vision implements the Provider interface using Google Cloud Vision
type Vision struct {
	service *vision.Service
}

// NewVision creates a Vision provider authenticated with apiKey
func NewVision(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Vision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}
	return &Vision{service: service}, nil
}

// Recognize runs document text detection on the image, which Vision fetches itself
func (v *Vision) Recognize(ctx context.Context, imageURL string) (Result, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: &vision.ImageSource{ImageUri: imageURL}},
			Features: []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}

	resp, err := v.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("annotating image: %w", err)
	}
	if len(resp.Responses) == 0 {
		return Result{}, nil
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return Result{}, fmt.Errorf("vision API error (code %d): %s", annotation.Error.Code, annotation.Error.Message)
	}

	var result Result
	if annotation.FullTextAnnotation != nil {
		result.DocumentText = annotation.FullTextAnnotation.Text
	}
	if len(annotation.TextAnnotations) > 0 {
		result.SimpleText = annotation.TextAnnotations[0].Description
	}
	return result, nil
}

// Close is a no-op; the Vision service holds no resources
func (v *Vision) Close() error {
	return nil
}
