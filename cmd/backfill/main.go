package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentsapp/moments/internal/app"
	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/imaging"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/service"
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "moments-backfill",
	})
	logger.SetDefaultLogger(appLogger)

	limit := flag.Int("limit", 50, "Maximum number of photos to process")
	dryRun := flag.Bool("dry-run", false, "List photos that need analysis without processing them")
	check := flag.Bool("check", false, "Report which vision integrations are configured and exit")
	imagePath := flag.String("image", "", "Analyze a single local image file and print the result")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	switch {
	case *check:
		printJSON(map[string]bool{
			"object_detection_available": application.Tagging.Available(),
			"alt_text_available":         application.AltText.Available(),
			"similarity_available":       application.Photos.SimilarityEnabled(),
		})
		return
	case *imagePath != "":
		if err := analyzeFile(ctx, application, *imagePath); err != nil {
			appLogger.WithError(err).WithField("image", *imagePath).Error("Image analysis failed")
			exitCode = 1
		}
		return
	}

	appLogger.WithFields(logger.Fields{
		"limit":   *limit,
		"dry_run": *dryRun,
	}).Info("Starting backfill")

	stats, err := application.Backfill.Run(ctx, &service.BackfillOptions{Limit: *limit, DryRun: *dryRun})
	if err != nil {
		appLogger.WithError(err).Error("Backfill failed")
		exitCode = 1
		return
	}
	printJSON(stats)
}

// fileAnalysis is printed by -image. Nothing is persisted.
type fileAnalysis struct {
	Format  string                 `json:"format"`
	Width   int                    `json:"width"`
	Height  int                    `json:"height"`
	Objects domain.DetectedObjects `json:"objects"`
	AltText string                 `json:"alt_text,omitempty"`
	Errors  map[string]string      `json:"errors,omitempty"`
}

// analyzeFile runs detection and alt-text generation on a local file, the same way an
// upload would, and prints what came back.
func analyzeFile(ctx context.Context, application *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := imaging.Inspect(data, application.Config.Upload.MaxPixels)
	if err != nil {
		return err
	}

	result := fileAnalysis{
		Format:  info.Format,
		Width:   info.Width,
		Height:  info.Height,
		Objects: domain.DetectedObjects{},
		Errors:  map[string]string{},
	}

	if application.Tagging.Available() {
		objects, err := application.Detector.DetectObjects(ctx, data)
		if err != nil {
			result.Errors["object_detection"] = err.Error()
		} else {
			result.Objects = objects
		}
	} else {
		result.Errors["object_detection"] = domain.ErrDetectionUnavailable.Error()
	}

	if application.AltText.Available() {
		text, err := application.Captioner.GenerateAltText(ctx, data, info.Format, result.Objects.Names())
		if err != nil {
			result.Errors["alt_text"] = err.Error()
		} else {
			result.AltText = text
		}
	} else {
		result.Errors["alt_text"] = domain.ErrCaptionUnavailable.Error()
	}

	printJSON(result)
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("Failed to write output: %v", err)
	}
}
