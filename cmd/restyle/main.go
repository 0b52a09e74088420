package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"restyle/internal/config"
	"restyle/internal/dispatch"
	"restyle/internal/domain"
	"restyle/internal/payload"
	"restyle/internal/pipeline"
	"restyle/internal/preprocess"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[restyle] ", log.LstdFlags|log.Lmsgprefix)

	var (
		file     = flag.String("file", "", "path to the photo to stylize")
		endpoint = flag.String("endpoint", cfg.Client.PrimaryURL, "transform endpoint")
		fallback = flag.String("fallback", cfg.Client.FallbackURL, "long-running fallback endpoint, empty disables rerouting")
		timeout  = flag.Duration("timeout", cfg.Client.AttemptTimeout, "per-attempt timeout")
		probe    = flag.Bool("probe", false, "send a connectivity probe instead of an image")
		out      = flag.String("out", "", "write an inline image result to this file instead of printing it")
	)
	flag.Parse()

	if err := run(cfg, logger, *file, *endpoint, *fallback, *timeout, *probe, *out); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(cfg config.Config, logger *log.Logger, file, endpoint, fallback string, timeout time.Duration, probe bool, out string) error {
	if !probe && file == "" {
		return fmt.Errorf("-file is required unless -probe is set")
	}

	if err := preprocess.Startup(); err != nil {
		return fmt.Errorf("image runtime startup: %w", err)
	}
	defer preprocess.Shutdown()

	preprocessor, err := preprocess.New(cfg.Preprocess.MaxEdge, cfg.Preprocess.JPEGQuality)
	if err != nil {
		return fmt.Errorf("build preprocessor: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		PrimaryURL:      endpoint,
		FallbackURL:     fallback,
		AttemptTimeout:  timeout,
		FallbackTimeout: cfg.Client.FallbackTimeout,
		MaxRetries:      cfg.Client.MaxRetries,
		InitialBackoff:  cfg.Client.InitialBackoff,
		MaxBackoff:      cfg.Client.MaxBackoff,
	}, logger)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	processor := pipeline.New(preprocessor, dispatcher, logger)
	ctx := context.Background()

	if probe {
		result := processor.Probe(ctx)
		if !result.Succeeded() {
			return fmt.Errorf("probe failed: %s", result.Failure.Error())
		}
		fmt.Println("service reachable")
		return nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}

	result := processor.Process(ctx, data, mediaTypeForPath(file))
	if !result.Succeeded() {
		return fmt.Errorf("transformation failed: %s", result.Failure.Error())
	}

	return deliver(result, out)
}

// deliver prints a remote URL, or decodes an inline data-URI result to disk
// when the upstream answered with image bytes instead of a link.
func deliver(result domain.Result, out string) error {
	data, mediaType, err := payload.Decode(result.ImageURL)
	if err != nil {
		fmt.Println(result.ImageURL)
		return nil
	}

	if out == "" {
		out = "restyled" + extensionForMediaType(mediaType)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Println(out)
	return nil
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}

func extensionForMediaType(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
