package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flotilla/pilot-agent/internal/agent"
	"github.com/flotilla/pilot-agent/internal/browser"
	"github.com/flotilla/pilot-agent/internal/reporter"
	"github.com/flotilla/pilot-agent/internal/store"
)

var (
	tapURL         string
	tapDescription string
	tapDragTo      string
	tapScreenID    string
	tapHeadless    bool
	tapConfidence  float64
	tapOutput      string
)

var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Locate a described target on a page and click it",
	Long: `Load a page, find the target matching the given description with a
vision model, convert its position to device pixels, and click it.
Screenshots taken along the way are saved as evidence and the run report is
printed as JSON.`,
	RunE: runTap,
}

func init() {
	tapCmd.Flags().StringVarP(&tapURL, "url", "u", "", "Page URL to drive (required)")
	tapCmd.Flags().StringVarP(&tapDescription, "target", "t", "", "Plain-language description of the target (required)")
	tapCmd.Flags().StringVar(&tapDragTo, "drag-to", "", "Drag the target onto this described destination instead of clicking")
	tapCmd.Flags().StringVar(&tapScreenID, "screen-id", "", "Cache key for this screen; enables target caching")
	tapCmd.Flags().BoolVar(&tapHeadless, "headless", true, "Run browser in headless mode")
	tapCmd.Flags().Float64Var(&tapConfidence, "confidence", 0, "Minimum target confidence (defaults to config confidence_threshold)")
	tapCmd.Flags().StringVarP(&tapOutput, "output", "o", "", "Evidence directory (defaults to config evidence_dir)")

	tapCmd.MarkFlagRequired("url")
	tapCmd.MarkFlagRequired("target")
}

func runTap(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()

	evidenceDir := cfg.EvidenceDir
	if tapOutput != "" {
		evidenceDir = tapOutput
	}
	if evidenceDir != "" {
		if err := EnsureOutputDir(evidenceDir); err != nil {
			return err
		}
	}

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	headless := cfg.Headless
	if cmd.Flags().Changed("headless") {
		headless = tapHeadless
	}
	mgr, err := browser.NewManager(headless, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer mgr.Close()

	threshold := cfg.ConfidenceThreshold
	if cmd.Flags().Changed("confidence") {
		threshold = tapConfidence
	}
	exec := browser.NewExecutor(threshold, logger)

	var targets *store.Store
	if cfg.StorePath != "" {
		targets, err = store.New(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open target store: %w", err)
		}
		defer targets.Close()
	}

	var uploader *reporter.S3Uploader
	if cfg.S3Bucket != "" {
		uploader, err = reporter.NewS3Uploader(cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return fmt.Errorf("failed to create S3 uploader: %w", err)
		}
	}

	pilot := agent.NewPilot(mgr, orch, exec, targets, uploader, logger)

	report, runErr := pilot.Run(cmd.Context(), agent.RunOptions{
		URL:         tapURL,
		Description: tapDescription,
		DragTo:      tapDragTo,
		ScreenID:    tapScreenID,
		CacheTTL:    cfg.CacheTTL,
		EvidenceDir: evidenceDir,
	})

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	return runErr
}
