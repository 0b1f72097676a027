package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
	"github.com/MeKo-Tech/tilestore/internal/worker"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Fetch every tile in a rectangular range, populating caching backends",
	Long: `warm walks a rectangular range of tile coordinates at a single
zoom level and issues a Get against the configured storage graph for
each one, using a small worker pool so slow backends (S3, HTTP remotes)
don't serialize the whole range.`,
	RunE: runWarm,
}

var bulkExpireCmd = &cobra.Command{
	Use:   "bulk-expire",
	Short: "Mark every tile in a rectangular range as expired",
	RunE:  runBulkExpire,
}

func init() {
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(bulkExpireCmd)

	for _, cmd := range []*cobra.Command{warmCmd, bulkExpireCmd} {
		cmd.Flags().String("style", "", "Tile style name (required)")
		cmd.Flags().Int("z", 0, "Zoom level")
		cmd.Flags().Int("x-min", 0, "Minimum tile X coordinate, inclusive")
		cmd.Flags().Int("x-max", 0, "Maximum tile X coordinate, inclusive")
		cmd.Flags().Int("y-min", 0, "Minimum tile Y coordinate, inclusive")
		cmd.Flags().Int("y-max", 0, "Maximum tile Y coordinate, inclusive")
		cmd.Flags().Int("workers", 4, "Number of concurrent workers")
		_ = cmd.MarkFlagRequired("style")
	}
	warmCmd.Flags().String("fmt", "png", "Tile format (png, jpeg, gif, json)")
}

func rangeTasks(cmd *cobra.Command, format tilekey.Format) ([]worker.Task, error) {
	style, _ := cmd.Flags().GetString("style")
	z, _ := cmd.Flags().GetInt("z")
	xMin, _ := cmd.Flags().GetInt("x-min")
	xMax, _ := cmd.Flags().GetInt("x-max")
	yMin, _ := cmd.Flags().GetInt("y-min")
	yMax, _ := cmd.Flags().GetInt("y-max")
	workers, _ := cmd.Flags().GetInt("workers")
	_ = workers

	if xMax < xMin || yMax < yMin {
		return nil, fmt.Errorf("warm: empty range (x %d..%d, y %d..%d)", xMin, xMax, yMin, yMax)
	}

	var tasks []worker.Task
	for y := yMin; y <= yMax; y++ {
		for x := xMin; x <= xMax; x++ {
			tasks = append(tasks, worker.Task{Tile: tilekey.Address{
				Command: tilekey.CommandRender,
				Style:   style,
				Z:       int32(z),
				X:       int32(x),
				Y:       int32(y),
				Format:  format,
			}})
		}
	}
	return tasks, nil
}

func runWarm(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	fmtName, _ := cmd.Flags().GetString("fmt")
	format := tilekey.ParseFormat(fmtName)
	if format == tilekey.FormatNone {
		return fmt.Errorf("unknown format %q", fmtName)
	}

	tasks, err := rangeTasks(cmd, format)
	if err != nil {
		return err
	}

	root, err := buildStorage()
	if err != nil {
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	progress := worker.NewProgress(len(tasks), true)

	pool := worker.New(worker.Config{
		Workers: workers,
		Op: worker.OpFunc(func(ctx context.Context, tile tilekey.Address) (bool, error) {
			handle, err := root.Get(ctx, tile)
			if err != nil {
				return false, err
			}
			return handle.Exists(), nil
		}),
		OnProgress: progress.Callback(),
	})

	results := pool.Run(cmd.Context(), tasks)
	progress.Done()

	var misses int
	for _, r := range results {
		if r.Err != nil {
			logger.Error("warm: fetch failed", "tile", r.Task.Tile.String(), "err", r.Err)
		} else if !r.OK {
			misses++
		}
	}

	fmt.Println(progress.Summary())
	logger.Info("warm complete", "total", len(tasks), "misses", misses)
	return nil
}

func runBulkExpire(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	tasks, err := rangeTasks(cmd, tilekey.FormatPNG)
	if err != nil {
		return err
	}

	root, err := buildStorage()
	if err != nil {
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	progress := worker.NewProgress(len(tasks), true)

	pool := worker.New(worker.Config{
		Workers:    workers,
		Op:         expireOp(root),
		OnProgress: progress.Callback(),
	})

	results := pool.Run(cmd.Context(), tasks)
	progress.Done()

	var failures int
	for _, r := range results {
		if r.Err != nil || !r.OK {
			failures++
		}
	}

	fmt.Println(progress.Summary())
	logger.Info("bulk-expire complete", "total", len(tasks), "failures", failures)
	return nil
}

// expireOp adapts storage.Storage.Expire to worker.Op.
func expireOp(root storage.Storage) worker.Op {
	return worker.OpFunc(func(ctx context.Context, tile tilekey.Address) (bool, error) {
		return root.Expire(ctx, tile)
	})
}
