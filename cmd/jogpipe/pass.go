package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/JogPipe/internal/engine"
)

// PassOptions holds flags for the pass command.
type PassOptions struct {
	At string
}

// NewPassCommand creates the pass command, which runs one pass and exits.
func NewPassCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{}

	cmd := &cobra.Command{
		Use:   "pass <kind>",
		Short: "Run one pass immediately",
		Long:  "Runs a single pass (" + strings.Join(engine.Kinds(), ", ") + ") against the configured store and prints its result as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd.Context(), cmd.OutOrStdout(), rootOpts, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "clock for the pass (RFC3339), defaults to the current minute")

	return cmd
}

// parseAt resolves the pass clock. An empty value selects the current minute in loc.
func parseAt(at string, loc *time.Location, now time.Time) (time.Time, error) {
	if at == "" {
		return now.In(loc).Truncate(time.Minute), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", at, err)
	}
	return t.In(loc), nil
}

func validKind(kind string) bool {
	for _, k := range engine.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func runPass(ctx context.Context, out io.Writer, rootOpts *RootOptions, opts *PassOptions, kind string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !validKind(kind) {
		return fmt.Errorf("unknown pass kind %q: must be one of %v", kind, engine.Kinds())
	}

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	at, err := parseAt(opts.At, a.loc, time.Now())
	if err != nil {
		return err
	}

	res, err := a.engine.RunPass(ctx, kind, at)
	if err != nil {
		return fmt.Errorf("%s pass failed: %w", kind, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Kind   string            `json:"kind"`
		At     time.Time         `json:"at"`
		Result engine.PassResult `json:"result"`
	}{kind, at, res})
}
