package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facelive/internal/camera"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/log"
)

var (
	cameraIndex  int
	cameraFPS    int
	cameraFrames int
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Score faces from a webcam until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		fmt.Printf("Opening camera %d...\n", cameraIndex)
		cam, err := camera.NewCapture(cameraIndex, cameraFPS)
		if err != nil {
			return fmt.Errorf("failed to open camera: %w", err)
		}
		defer cam.Close()
		fmt.Printf("Camera opened: %dx%d\n", cam.Width(), cam.Height())

		ctx := cmd.Context()
		for n := 0; cameraFrames == 0 || n < cameraFrames; n++ {
			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down...")
				return nil
			default:
			}

			buf, width, height, err := cam.ReadI420()
			if err != nil {
				log.Warn(log.Fields{"error": err.Error()}, "frame dropped")
				continue
			}
			src, err := frame.NewYUV(buf, width, height, frame.I420, frame.Up)
			if err != nil {
				return err
			}
			results, err := p.Process(src)
			if err != nil {
				log.Warn(log.Fields{"error": err.Error()}, "frame failed")
				continue
			}

			timing := p.LastTiming()
			live := 0
			for _, r := range results {
				if r.Live {
					live++
				}
			}
			fmt.Printf("\rfaces=%d live=%d D:%3.0fms L:%3.0fms T:%3.0fms  ",
				len(results), live,
				float64(timing.Detection.Milliseconds()),
				float64(timing.Liveness.Milliseconds()),
				float64(timing.Total.Milliseconds()))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cameraCmd)
	cameraCmd.Flags().IntVarP(&cameraIndex, "camera", "c", 0, "Camera device index")
	cameraCmd.Flags().IntVar(&cameraFPS, "fps", 30, "Target frames per second")
	cameraCmd.Flags().IntVarP(&cameraFrames, "frames", "n", 0, "Stop after n frames (0 runs until interrupted)")
}
