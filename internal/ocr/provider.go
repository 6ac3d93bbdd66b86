// Package ocr turns receipt images into raw text.
package ocr

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no OCR provider has been configured
var ErrUnavailable = errors.New("ocr provider is not configured")

// Result holds the text a provider recovered from an image
type Result struct {
	// DocumentText is the layout-aware full text
	DocumentText string
	// SimpleText is the plain text detection
	SimpleText string
}

// Text prefers the document text over the simple text
func (r Result) Text() string {
	if r.DocumentText != "" {
		return r.DocumentText
	}
	return r.SimpleText
}

// Provider recognizes the text in the image at imageURL
type Provider interface {
	Recognize(ctx context.Context, imageURL string) (Result, error)
	// Close closes the provider and releases resources
	Close() error
}

// Unavailable is a Provider that always fails with ErrUnavailable
type Unavailable struct{}

func (Unavailable) Recognize(context.Context, string) (Result, error) {
	return Result{}, ErrUnavailable
}

func (Unavailable) Close() error {
	return nil
}
