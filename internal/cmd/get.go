package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a single tile and write its bytes to a file",
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	addTileFlags(getCmd)
	getCmd.Flags().String("out", "", "Output file path (required)")
	_ = getCmd.MarkFlagRequired("out")
}

func runGet(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	tile, err := tileFlagsToAddress(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	root, err := buildStorage()
	if err != nil {
		return err
	}

	handle, err := root.Get(cmd.Context(), tile)
	if err != nil {
		return fmt.Errorf("get %s: %w", tile.String(), err)
	}
	if !handle.Exists() {
		return fmt.Errorf("get %s: not found", tile.String())
	}

	data, ok := handle.Data()
	if !ok {
		return fmt.Errorf("get %s: handle reports exists but has no data", tile.String())
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("get %s: writing %s: %w", tile.String(), out, err)
	}

	logger.Info("fetched tile", "tile", tile.String(), "out", out, "bytes", len(data), "expired", handle.Expired())
	return nil
}
