package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/canvas"
)

// Opener builds the app for one command. The app's workers stop when ctx is
// done.
type Opener func(ctx context.Context) (*app.App, error)

type RootOptions struct {
	Format string // "json" | "text"
	Open   Opener
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "duo",
		Short: "duo - notes and a shared canvas for two",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewNameCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewInviteCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewPartnerCommand(opts))
	cmd.AddCommand(NewUnpairCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewDoodleCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewPaintCommand(opts))
	cmd.AddCommand(NewFillCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewNudgeCommand(opts))
	cmd.AddCommand(NewMoodCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withApp opens the app, runs fn and shuts the app down again.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	a, err := o.Open(ctx)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		a.Close()
	}()
	return fn(ctx, a)
}

// print writes v as JSON in json format, or calls text otherwise.
func (o *RootOptions) print(w io.Writer, v any, text func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// parseCell reads "x,y".
func parseCell(s string) (canvas.Cell, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return canvas.Cell{}, fmt.Errorf("invalid cell %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return canvas.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return canvas.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	return canvas.Cell{X: x, Y: y}, nil
}
