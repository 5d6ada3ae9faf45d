package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/flotilla/pilot-agent/internal/agent"
	"github.com/flotilla/pilot-agent/internal/align"
	"github.com/flotilla/pilot-agent/internal/locator"
)

var (
	locateImage       string
	locateDescription string
	locateDPR         float64
	locateOffsetX     float64
	locateOffsetY     float64
	locateScale       float64
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Locate a target in a saved screenshot",
	Long: `Run the vision locator against a PNG on disk without a browser.
The located region and, when page geometry flags are given, the aligned
device coordinate are printed as JSON.`,
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().StringVarP(&locateImage, "image", "i", "", "Path to a PNG screenshot (required)")
	locateCmd.Flags().StringVarP(&locateDescription, "target", "t", "", "Plain-language description of the target (required)")
	locateCmd.Flags().Float64Var(&locateDPR, "dpr", 1.0, "Device pixel ratio of the captured page")
	locateCmd.Flags().Float64Var(&locateOffsetX, "offset-x", 0, "Frame X offset in device pixels")
	locateCmd.Flags().Float64Var(&locateOffsetY, "offset-y", 0, "Frame Y offset in device pixels")
	locateCmd.Flags().Float64Var(&locateScale, "scale", 1.0, "Pre-send image scale relative to the viewport")

	locateCmd.MarkFlagRequired("image")
	locateCmd.MarkFlagRequired("target")
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()

	data, err := os.ReadFile(locateImage)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", locateImage, err)
	}
	imgCfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s is not a valid PNG: %w", locateImage, err)
	}

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	targeter := agent.NewTargeter(orch, logger)

	img := locator.Image{Data: data, Width: imgCfg.Width, Height: imgCfg.Height}
	actx := align.Context{
		ImageWidth:       imgCfg.Width,
		ImageHeight:      imgCfg.Height,
		DevicePixelRatio: locateDPR,
		FrameOffsetX:     locateOffsetX,
		FrameOffsetY:     locateOffsetY,
		ViewportScale:    locateScale,
	}

	result, err := targeter.LocateAndAlign(cmd.Context(), img, locateDescription, actx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(struct {
		Target     *locator.TargetRegion  `json:"target"`
		Coordinate align.DeviceCoordinate `json:"coordinate"`
	}{result.Region, result.Coordinate}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	return nil
}
