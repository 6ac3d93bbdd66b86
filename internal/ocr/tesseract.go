package ocr

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/otiai10/gosseract/v2"
)

const maxImageBytes = 20 << 20

// Tesseract implements the Provider interface with a local Tesseract install
type Tesseract struct {
	client         *http.Client
	languages      []string
	tessdataPrefix string
	recognize      func(png []byte) (string, error)
}

// NewTesseract creates a Tesseract provider. An empty tessdataPrefix uses the library default.
func NewTesseract(tessdataPrefix string, languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	t := &Tesseract{
		client:         http.DefaultClient,
		languages:      languages,
		tessdataPrefix: tessdataPrefix,
	}
	t.recognize = t.ocr
	return t
}

// Recognize downloads the image, converts it to PNG and reads it with Tesseract
func (t *Tesseract) Recognize(ctx context.Context, imageURL string) (Result, error) {
	data, contentType, err := t.fetch(ctx, imageURL)
	if err != nil {
		return Result{}, err
	}

	png, err := toPNG(data, contentType)
	if err != nil {
		return Result{}, err
	}

	text, err := t.recognize(png)
	if err != nil {
		return Result{}, err
	}
	return Result{DocumentText: text}, nil
}

func (t *Tesseract) fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading image (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (t *Tesseract) ocr(png []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataPrefix != "" {
		client.SetTessdataPrefix(t.tessdataPrefix)
	}
	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}

// Close is a no-op; a Tesseract client is created per image
func (t *Tesseract) Close() error {
	return nil
}
