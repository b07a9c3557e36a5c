/**
 * imagetext - Interactive Entry Point
 *
 * Terminal front end for the extraction workflow: press p to pick an image
 * from the media root, the image is sent once to Google Cloud Vision
 * TEXT_DETECTION, and the recognized text (or the failure) is shown until
 * cleared with c.
 *
 * Logs go to LOG_FILE since the terminal is owned by the UI.
 */

package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imagetext/imagetext/internal/acquire"
	"github.com/imagetext/imagetext/internal/clients"
	"github.com/imagetext/imagetext/internal/config"
	"github.com/imagetext/imagetext/internal/logging"
	"github.com/imagetext/imagetext/internal/ui"
	"github.com/imagetext/imagetext/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "imagetext: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile, err := tea.LogToFile(cfg.LogFile, "")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	logger := logging.New(logFile, "imagetext", logging.ParseLevel(cfg.LogLevel))
	logger.Info("starting", "media_root", cfg.MediaRoot, "endpoint", cfg.VisionEndpoint, "timeout", cfg.OCRTimeout)
	if cfg.VisionAPIKey == "" {
		logger.Warn("GOOGLE_VISION_API_KEY is not set, extractions will fail")
	}

	bridge := ui.NewBridge()

	adapter, err := acquire.NewAdapter(&acquire.AdapterConfig{
		Chooser:    bridge.Handoff,
		Permission: acquire.NewOnceGrant(bridge.AskPermission),
		MediaRoot:  cfg.MediaRoot,
		MaxBytes:   cfg.MaxImageSize,
		Logger:     logger.With("acquire"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize image picker: %w", err)
	}

	vision := clients.NewVisionClient(&clients.VisionClientConfig{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Timeout:  cfg.OCRTimeout,
		Logger:   logger.With("vision"),
	})

	controller, err := workflow.NewController(&workflow.ControllerConfig{
		Picker:   adapter,
		Detector: vision,
		Logger:   logger.With("workflow"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program := tea.NewProgram(ui.New(ctx, controller, bridge, adapter.Root()), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ui exited: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
