package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/canvas"
)

func NewPaintCommand(opts *RootOptions) *cobra.Command {
	var color string
	var brush int
	var eraser bool

	cmd := &cobra.Command{
		Use:   "paint <x,y> [x,y...]",
		Short: "Paint one stroke through the given cells",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cells := make([]canvas.Cell, 0, len(args))
			for _, arg := range args {
				c, err := parseCell(arg)
				if err != nil {
					return err
				}
				cells = append(cells, c)
			}

			return opts.withCanvas(cmd, func(e *canvas.Engine) error {
				tool := canvas.ToolPencil
				if eraser {
					tool = canvas.ToolEraser
				}
				if err := e.SetTool(tool); err != nil {
					return err
				}
				if err := e.SetColor(color); err != nil {
					return err
				}
				if err := e.SetBrush(brush); err != nil {
					return err
				}

				if err := e.Begin(cells[0]); err != nil {
					return err
				}
				for _, c := range cells[1:] {
					e.Move(c)
				}
				e.End()
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&color, "color", "c", "#000000", "paint color (#RRGGBB)")
	cmd.Flags().IntVarP(&brush, "brush", "b", canvas.MinBrush, "brush size (1-3)")
	cmd.Flags().BoolVar(&eraser, "eraser", false, "erase instead of paint")

	return cmd
}

func NewFillCommand(opts *RootOptions) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "fill <x,y>",
		Short: "Flood fill the region containing a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCell(args[0])
			if err != nil {
				return err
			}
			return opts.withCanvas(cmd, func(e *canvas.Engine) error {
				if err := e.SetColor(color); err != nil {
					return err
				}
				return e.Fill(c)
			})
		},
	}

	cmd.Flags().StringVarP(&color, "color", "c", "#000000", "fill color (#RRGGBB)")

	return cmd
}

func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Erase the whole shared canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				e, err := a.Canvas(ctx, nil)
				if err != nil {
					return err
				}
				defer e.Close()
				return e.Clear(ctx)
			})
		},
	}
}

// withCanvas runs fn against a started canvas engine, then writes the
// pending changes and prints the grid.
func (o *RootOptions) withCanvas(cmd *cobra.Command, fn func(e *canvas.Engine) error) error {
	return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
		e, err := a.Canvas(ctx, nil)
		if err != nil {
			return err
		}
		err = fn(e)
		e.Close()
		if err != nil {
			return err
		}

		pixels := e.Snapshot()
		return o.print(cmd.OutOrStdout(), pixels, func(w io.Writer) {
			printGrid(w, pixels)
		})
	})
}

func printGrid(w io.Writer, pixels canvas.Pixels) {
	for y := 0; y < canvas.GridSize; y++ {
		row := make([]byte, canvas.GridSize)
		for x := 0; x < canvas.GridSize; x++ {
			row[x] = '.'
			if _, ok := pixels[canvas.Cell{X: x, Y: y}]; ok {
				row[x] = '#'
			}
		}
		fmt.Fprintln(w, string(row))
	}
}
