package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark a single metatile as expired in the configured storage graph",
	RunE:  runExpire,
}

func init() {
	rootCmd.AddCommand(expireCmd)
	addTileFlags(expireCmd)
}

func runExpire(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	tile, err := tileFlagsToAddress(cmd)
	if err != nil {
		return err
	}

	root, err := buildStorage()
	if err != nil {
		return err
	}

	ok, err := root.Expire(cmd.Context(), tile)
	if err != nil {
		return fmt.Errorf("expire %s: %w", tile.String(), err)
	}
	if !ok {
		return fmt.Errorf("expire %s: not found", tile.String())
	}

	logger.Info("expired metatile", "tile", tile.String())
	return nil
}

// addTileFlags registers the --style/--z/--x/--y/--fmt flags shared by
// the single-tile operator commands.
func addTileFlags(cmd *cobra.Command) {
	cmd.Flags().String("style", "", "Tile style name (required)")
	cmd.Flags().Int("z", 0, "Zoom level")
	cmd.Flags().Int("x", 0, "Tile X coordinate")
	cmd.Flags().Int("y", 0, "Tile Y coordinate")
	cmd.Flags().String("fmt", "png", "Tile format (png, jpeg, gif, json)")
	_ = cmd.MarkFlagRequired("style")
}

// tileFlagsToAddress builds a tilekey.Address from the flags registered
// by addTileFlags.
func tileFlagsToAddress(cmd *cobra.Command) (tilekey.Address, error) {
	style, _ := cmd.Flags().GetString("style")
	z, _ := cmd.Flags().GetInt("z")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	fmtName, _ := cmd.Flags().GetString("fmt")

	format := tilekey.ParseFormat(fmtName)
	if format == tilekey.FormatNone {
		return tilekey.Address{}, fmt.Errorf("unknown format %q", fmtName)
	}

	return tilekey.Address{
		Command: tilekey.CommandRender,
		Style:   style,
		Z:       int32(z),
		X:       int32(x),
		Y:       int32(y),
		Format:  format,
	}, nil
}
