// Package processing runs receipt images through OCR, extraction and validation.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/cache"
	"github.com/zombor/receipt-extractor/internal/heuristic"
	"github.com/zombor/receipt-extractor/internal/ocr"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
	"github.com/zombor/receipt-extractor/internal/validation"
)

// Mode selects how much of the pipeline a request runs
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeTest   Mode = "test"
	ModeDebug  Mode = "debug"
)

// testReceipt is extracted in test mode without any external calls
const testReceipt = `WAL-MART SUPERCENTER #4521
01/15/2024
PAPER TOWELS 2 @ 4.99 9.98
MILK 3.49
SUBTOTAL 13.47
TAX 1.08
TOTAL 14.55
VISA 14.55`

// Extractor turns OCR text into a record
type Extractor interface {
	Extract(ctx context.Context, text string, now time.Time) (*receipt.Record, error)
}

// IDGenerator generates unique request IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.New().String()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options tunes the service
type Options struct {
	// FallbackOnParseError retries with the heuristic extractor when the model reply is not JSON
	FallbackOnParseError bool
}

// Result is the outcome of processing one image
type Result struct {
	RequestID      string
	Mode           Mode
	Record         *receipt.Record
	RawText        string
	FromCache      bool
	ProcessingTime time.Duration
}

// Service handles receipt extraction requests
type Service struct {
	cache       *cache.Gateway
	ocr         ocr.Provider
	primary     Extractor
	fallback    Extractor
	validator   *validation.Validator
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// A nil primary extractor sends every request to fallback.
func NewService(gateway *cache.Gateway, provider ocr.Provider, primary, fallback Extractor, opts Options) *Service {
	return NewServiceWithDeps(gateway, provider, primary, fallback, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(gateway *cache.Gateway, provider ocr.Provider, primary, fallback Extractor, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if provider == nil {
		provider = ocr.Unavailable{}
	}
	if fallback == nil {
		fallback = heuristic.NewStrategy(heuristic.DefaultOptions())
	}
	return &Service{
		cache:       gateway,
		ocr:         provider,
		primary:     primary,
		fallback:    fallback,
		validator:   validation.New(),
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Process runs the image at imageURL through the pipeline selected by mode.
// Returned errors are always *Error.
func (s *Service) Process(ctx context.Context, imageURL string, mode Mode) (*Result, error) {
	start := s.timeSource.Now()
	result := &Result{RequestID: s.idGenerator.Generate(), Mode: mode}
	log := slog.With("req_id", result.RequestID, "mode", mode)

	var err error
	switch mode {
	case ModeTest:
		err = s.processTest(ctx, result, start)
	case ModeDebug:
		err = s.processDebug(ctx, result, imageURL)
	case ModeNormal, "":
		result.Mode = ModeNormal
		err = s.processNormal(ctx, result, imageURL, start)
	default:
		err = newError(CodeInvalidRequest, fmt.Sprintf("Unknown mode %q", mode), nil)
	}

	result.ProcessingTime = s.timeSource.Now().Sub(start)
	if err != nil {
		perr := asError(err)
		log.Error("Failed to process receipt", "image_url", imageURL, "code", perr.Code, "error", err)
		return nil, perr
	}

	log.Info("Processed receipt",
		"image_url", imageURL,
		"from_cache", result.FromCache,
		"elapsed_ms", result.ProcessingTime.Milliseconds(),
	)
	return result, nil
}

func (s *Service) processTest(ctx context.Context, result *Result, now time.Time) error {
	record, err := s.fallback.Extract(ctx, testReceipt, now)
	if err != nil {
		return newError(CodeInternalError, "Test extraction failed", err)
	}
	s.validator.Process(record, now)
	result.Record = record
	return nil
}

func (s *Service) processDebug(ctx context.Context, result *Result, imageURL string) error {
	if err := requireImageURL(imageURL); err != nil {
		return err
	}
	text, err := s.recognize(ctx, imageURL)
	if err != nil {
		return err
	}
	result.RawText = text
	return nil
}

func (s *Service) processNormal(ctx context.Context, result *Result, imageURL string, now time.Time) error {
	if err := requireImageURL(imageURL); err != nil {
		return err
	}

	key := cache.KeyFor(imageURL)
	if cached, ok := s.cache.Get(ctx, key); ok {
		result.Record = cached
		result.FromCache = true
		return nil
	}

	text, err := s.recognize(ctx, imageURL)
	if err != nil {
		return err
	}

	record, err := s.extract(ctx, text, now)
	if err != nil {
		return err
	}

	// the cache holds the extractor's output as-is
	s.cache.Put(ctx, key, record)

	s.validator.Process(record, now)
	result.Record = record
	return nil
}

func (s *Service) recognize(ctx context.Context, imageURL string) (string, error) {
	res, err := s.ocr.Recognize(ctx, imageURL)
	if errors.Is(err, ocr.ErrUnavailable) {
		return "", newError(CodeServiceUnavailable, "OCR service is not configured", err)
	}
	if err != nil {
		return "", newError(CodeOCRServiceError, "OCR request failed", err)
	}
	return res.Text(), nil
}

func (s *Service) extract(ctx context.Context, text string, now time.Time) (*receipt.Record, error) {
	if s.primary == nil {
		return s.extractWith(ctx, s.fallback, text, now)
	}

	record, err := s.primary.Extract(ctx, text, now)
	if err == nil {
		return record, nil
	}

	var parseErr *scanning.ParseError
	if !errors.As(err, &parseErr) {
		return nil, newError(CodeServiceUnavailable, "Extraction service request failed", err)
	}
	if !s.opts.FallbackOnParseError {
		perr := newError(CodeParseError, "Could not parse the extraction service response", err)
		perr.Debug = parseErr.Response
		return nil, perr
	}

	slog.Warn("Model reply was not JSON, using heuristic extraction", "error", err)
	return s.extractWith(ctx, s.fallback, text, now)
}

func (s *Service) extractWith(ctx context.Context, e Extractor, text string, now time.Time) (*receipt.Record, error) {
	record, err := e.Extract(ctx, text, now)
	if err != nil {
		return nil, newError(CodeInternalError, "Extraction failed", err)
	}
	return record, nil
}

func requireImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return newError(CodeInvalidRequest, "imageUrl is required", nil)
	}
	return nil
}
