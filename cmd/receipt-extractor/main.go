package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/cache"
	"github.com/zombor/receipt-extractor/internal/heuristic"
	"github.com/zombor/receipt-extractor/internal/ocr"
	"github.com/zombor/receipt-extractor/internal/processing"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port                 *int
	cacheStore           *string
	cachePath            *string
	cacheDSN             *string
	cacheTTL             *time.Duration
	ocrProvider          *string
	visionKey            *string
	tessdataPrefix       *string
	tesseractLang        *string
	llm                  *string
	geminiKey            *string
	geminiModel          *string
	ollamaURL            *string
	ollamaModel          *string
	openaiKey            *string
	openaiURL            *string
	openaiModel          *string
	fallbackOnParseError *bool
	decimalRepair        *bool
	fuzzyVendor          *bool
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-extractor")
	cfg := config{
		port:                 fs.IntLong("port", 8080, "HTTP server port"),
		cacheStore:           fs.StringLong("cache-store", "bolt", "Cache store: 'bolt', 'sqlite', 'postgres' or 'none'"),
		cachePath:            fs.StringLong("cache-path", "receipt-cache.db", "Cache file path for the bolt and sqlite stores"),
		cacheDSN:             fs.StringLong("cache-dsn", "", "Postgres connection string for the postgres store"),
		cacheTTL:             fs.DurationLong("cache-ttl", cache.DefaultTTL, "How long extracted receipts stay cached"),
		ocrProvider:          fs.StringLong("ocr-provider", "vision", "OCR provider: 'vision' or 'tesseract'"),
		visionKey:            fs.StringLong("vision-key", "", "Google Cloud Vision API key (or set VISION_API_KEY env var)"),
		tessdataPrefix:       fs.StringLong("tessdata-prefix", "", "Tesseract tessdata directory"),
		tesseractLang:        fs.StringLong("tesseract-lang", "eng", "Tesseract languages, '+' separated"),
		llm:                  fs.StringLong("llm", "gemini", "Extraction model: 'gemini', 'ollama', 'openai' or 'none'"),
		geminiKey:            fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:          fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		ollamaURL:            fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:          fs.StringLong("ollama-model", "llama3.1", "Ollama model name"),
		openaiKey:            fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)"),
		openaiURL:            fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI compatible API base URL"),
		openaiModel:          fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name"),
		fallbackOnParseError: fs.BoolLong("fallback-on-parse-error", "Use heuristic extraction when the model reply is not JSON"),
		decimalRepair:        fs.BoolLongDefault("amount-decimal-repair", true, "Read bare 3-5 digit numbers as cents"),
		fuzzyVendor:          fs.BoolLong("fuzzy-vendor", "Match vendor names by similarity"),
	}
	showVersion := fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx := context.Background()

	slog.Info("Initializing cache...", "store", *cfg.cacheStore)
	store, err := newCacheStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize cache", "error", err)
		os.Exit(1)
	}
	gateway := cache.NewGateway(store, *cfg.cacheTTL)
	defer gateway.Close()

	provider, err := newOCRProvider(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize OCR provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	completer, err := newCompleter(cfg)
	if err != nil {
		slog.Error("Failed to initialize extraction model", "error", err)
		os.Exit(1)
	}

	fallback := heuristic.NewStrategy(heuristic.Options{
		DecimalRepair: *cfg.decimalRepair,
		FuzzyVendor:   *cfg.fuzzyVendor,
	})

	var primary processing.Extractor
	if completer != nil {
		defer completer.Close()
		primary = scanning.NewStrategy(completer)
	} else {
		slog.Info("No extraction model configured, using heuristic extraction")
	}

	service := processing.NewService(gateway, provider, primary, fallback, processing.Options{
		FallbackOnParseError: *cfg.fallbackOnParseError,
	})
	server := processing.NewServer(service)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *cfg.port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// newCacheStore opens the configured store. 'none' returns a nil store, which disables caching.
func newCacheStore(ctx context.Context, cfg config) (cache.Store, error) {
	switch *cfg.cacheStore {
	case "bolt":
		return cache.NewBoltStore(*cfg.cachePath)
	case "sqlite":
		return cache.NewSQLiteStore(*cfg.cachePath)
	case "postgres":
		if *cfg.cacheDSN == "" {
			return nil, fmt.Errorf("--cache-dsn is required for the postgres store")
		}
		return cache.NewPostgresStore(ctx, *cfg.cacheDSN)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid cache store %q (valid: bolt, sqlite, postgres, none)", *cfg.cacheStore)
	}
}

// newOCRProvider creates the configured provider. A missing Vision key is not fatal:
// the server starts and OCR requests report the service as unavailable.
func newOCRProvider(ctx context.Context, cfg config) (ocr.Provider, error) {
	switch *cfg.ocrProvider {
	case "vision":
		apiKey := *cfg.visionKey
		if apiKey == "" {
			apiKey = os.Getenv("VISION_API_KEY")
		}
		if apiKey == "" {
			slog.Warn("Vision API key is not set. Set --vision-key flag or VISION_API_KEY environment variable")
			return ocr.Unavailable{}, nil
		}
		slog.Info("Initializing Vision OCR...")
		return ocr.NewVision(ctx, apiKey)
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...", "lang", *cfg.tesseractLang)
		return ocr.NewTesseract(*cfg.tessdataPrefix, strings.Split(*cfg.tesseractLang, "+")...), nil
	default:
		return nil, fmt.Errorf("invalid OCR provider %q (valid: vision, tesseract)", *cfg.ocrProvider)
	}
}

// newCompleter creates the configured model client, or nil for 'none'
func newCompleter(cfg config) (scanning.Completer, error) {
	switch *cfg.llm {
	case "gemini":
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini api key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable, or use --llm none")
		}
		slog.Info("Initializing Gemini...", "model", *cfg.geminiModel)
		return scanning.NewGemini(apiKey, *cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *cfg.ollamaURL, "model", *cfg.ollamaModel)
		return scanning.NewOllama(*cfg.ollamaURL, *cfg.ollamaModel)
	case "openai":
		apiKey := *cfg.openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI...", "url", *cfg.openaiURL, "model", *cfg.openaiModel)
		return scanning.NewOpenAI(apiKey, *cfg.openaiURL, *cfg.openaiModel)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid model %q (valid: gemini, ollama, openai, none)", *cfg.llm)
	}
}
