package main

import (
	"fmt"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facelive/internal/inference"
)

var inspectMetal bool

var inspectCmd = &cobra.Command{
	Use:   "inspect [model...]",
	Short: "Print model inputs, outputs and metadata",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := cfg.Loader()
		if err := inference.Initialize(loader.LibraryPath); err != nil {
			return err
		}

		for _, name := range args {
			path := loader.Path(name)
			fmt.Printf("%s\n", path)

			inputs, outputs, err := ort.GetInputOutputInfo(path)
			if err != nil {
				return fmt.Errorf("failed to get model info: %w", err)
			}
			fmt.Printf("  Inputs (%d):\n", len(inputs))
			for _, info := range inputs {
				fmt.Printf("    %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
			}
			fmt.Printf("  Outputs (%d):\n", len(outputs))
			for _, info := range outputs {
				fmt.Printf("    %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
			}

			if metadata, err := ort.GetModelMetadata(path); err == nil {
				if producer, err := metadata.GetProducerName(); err == nil {
					fmt.Printf("  Producer: %s\n", producer)
				}
				if version, err := metadata.GetVersion(); err == nil {
					fmt.Printf("  Version: %d\n", version)
				}
				metadata.Destroy()
			}

			if inspectMetal {
				if err := metalReport(path); err != nil {
					fmt.Printf("  go-metal: %v\n", err)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectMetal, "metal", false, "Also try a go-metal import (darwin only)")
}
