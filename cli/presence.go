package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zlnvch/duo/app"
)

func NewNudgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nudge",
		Short: "Let your partner know you are thinking of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				pairId, err := a.Session.RequirePair()
				if err != nil {
					return err
				}
				res := a.Presence.SendNudge(ctx, pairId, a.Session.UserId(), a.Session.Name())
				fmt.Fprintln(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func NewMoodCommand(opts *RootOptions) *cobra.Command {
	var clearMood bool

	cmd := &cobra.Command{
		Use:   "mood [emoji]",
		Short: "Set or clear your mood",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearMood && len(args) == 0 {
				return fmt.Errorf("give a mood or --clear")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var mood *string
				if !clearMood {
					mood = &args[0]
				}
				res := a.Presence.SetMood(ctx, a.Session.UserId(), mood)
				fmt.Fprintln(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearMood, "clear", false, "clear the mood")

	return cmd
}
