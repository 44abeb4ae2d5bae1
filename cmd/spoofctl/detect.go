package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/dudu/facelive/internal/camera"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/pipeline"
)

var (
	detectOrientation int
	detectYUV         bool
	detectJSON        bool
)

// faceReport is the printed form of one result
type faceReport struct {
	File       string  `json:"file"`
	Left       int32   `json:"left"`
	Top        int32   `json:"top"`
	Right      int32   `json:"right"`
	Bottom     int32   `json:"bottom"`
	Confidence float32 `json:"confidence"`
	Score      float32 `json:"score"`
	Live       bool    `json:"live"`
	Error      string  `json:"error,omitempty"`
}

var detectCmd = &cobra.Command{
	Use:   "detect [image...]",
	Short: "Detect faces in image files and score their liveness",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		var reports []faceReport
		for _, path := range args {
			results, err := detectFile(p, path)
			if err != nil {
				return err
			}
			for _, r := range results {
				rep := faceReport{
					File:       path,
					Left:       r.Box.Left,
					Top:        r.Box.Top,
					Right:      r.Box.Right,
					Bottom:     r.Box.Bottom,
					Confidence: r.Box.Confidence,
					Score:      r.Score,
					Live:       r.Live,
				}
				if r.Err != nil {
					rep.Error = r.Err.Error()
				}
				reports = append(reports, rep)
			}
		}

		if detectJSON {
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		for _, r := range reports {
			fmt.Printf("%s: [%d,%d,%d,%d] conf=%.3f score=%.3f live=%v\n",
				r.File, r.Left, r.Top, r.Right, r.Bottom, r.Confidence, r.Score, r.Live)
		}
		if len(reports) == 0 {
			fmt.Println("No faces found")
		}
		return nil
	},
}

// detectFile runs either the decoded-image path or, with --yuv, the raw
// I420 path with the requested orientation.
func detectFile(p *pipeline.Pipeline, path string) ([]pipeline.Result, error) {
	if detectYUV {
		buf, width, height, err := camera.LoadI420(path)
		if err != nil {
			return nil, err
		}
		src, err := frame.NewYUV(buf, width, height, frame.I420, frame.Orientation(detectOrientation))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p.Process(src)
	}

	img, err := camera.LoadImage(path)
	if err != nil {
		return nil, err
	}
	src, err := frame.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p.Process(src)
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().IntVarP(&detectOrientation, "orientation", "o", 0, "Orientation code 0-7 applied with --yuv")
	detectCmd.Flags().BoolVar(&detectYUV, "yuv", false, "Feed the image as an I420 buffer")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print results as JSON")
}
