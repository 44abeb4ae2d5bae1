package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dudu/facelive/internal/log"
)

var benchCmd = &cobra.Command{
	Use:   "bench [dir]",
	Short: "Run detection and liveness over every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := imageFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no images found in %s", args[0])
		}

		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Benchmarking"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		var (
			faces, live, failed int
			detection, scoring  time.Duration
		)
		ctx := cmd.Context()
		for _, path := range files {
			if ctx.Err() != nil {
				break
			}
			results, err := detectFile(p, path)
			bar.Add(1)
			if err != nil {
				failed++
				log.Warn(log.Fields{"file": path, "error": err.Error()}, "image skipped")
				continue
			}
			timing := p.LastTiming()
			detection += timing.Detection
			scoring += timing.Liveness
			faces += len(results)
			for _, r := range results {
				if r.Live {
					live++
				}
			}
		}
		bar.Finish()

		processed := len(files) - failed
		fmt.Printf("\nImages: %d (%d failed)\n", len(files), failed)
		fmt.Printf("Faces:  %d (%d live)\n", faces, live)
		if processed > 0 {
			fmt.Printf("Detection: %.1fms avg\n", float64(detection.Microseconds())/1000/float64(processed))
			fmt.Printf("Liveness:  %.1fms avg\n", float64(scoring.Microseconds())/1000/float64(processed))
		}
		return nil
	},
}

// imageFiles lists decodable images in dir, sorted by name
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(benchCmd)
}
