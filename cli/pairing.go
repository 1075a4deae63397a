package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/widget"
)

type whoami struct {
	UserId        string             `json:"userId"`
	Name          string             `json:"name"`
	State         string             `json:"state"`
	PairId        string             `json:"pairId,omitempty"`
	Code          string             `json:"pendingCode,omitempty"`
	Mood          string             `json:"mood,omitempty"`
	Notifications bool               `json:"notifications"`
	Latest        *models.WidgetData `json:"latest,omitempty"`
}

func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the local identity and pairing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s := a.Session
				identity, err := s.Identity(ctx)
				if err != nil {
					return err
				}
				w := whoami{
					UserId:        s.UserId(),
					Name:          s.Name(),
					State:         s.State().String(),
					PairId:        s.PairId(),
					Code:          s.PendingCode(),
					Mood:          identity.Mood,
					Notifications: identity.NotificationToken != "",
				}
				if latest, ok, err := widget.Cached(ctx, a.Device()); err != nil {
					return err
				} else if ok {
					w.Latest = &latest
				}
				return opts.print(cmd.OutOrStdout(), w, func(out io.Writer) {
					fmt.Fprintf(out, "user:  %s\n", w.UserId)
					fmt.Fprintf(out, "name:  %s\n", w.Name)
					fmt.Fprintf(out, "state: %s\n", w.State)
					if w.PairId != "" {
						fmt.Fprintf(out, "pair:  %s\n", w.PairId)
					}
					if w.Code != "" {
						fmt.Fprintf(out, "code:  %s\n", w.Code)
					}
					if w.Mood != "" {
						fmt.Fprintf(out, "mood:  %s\n", w.Mood)
					}
					fmt.Fprintf(out, "notifications: %t\n", w.Notifications)
					if w.Latest != nil {
						fmt.Fprintf(out, "latest: %s: %s\n", w.Latest.FromName, w.Latest.Message)
					}
				})
			})
		},
	}
}

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var clearToken bool

	cmd := &cobra.Command{
		Use:   "token [push token]",
		Short: "Register the push token your partner's nudges and messages go to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearToken && len(args) == 0 {
				return fmt.Errorf("give a token or --clear")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				token := ""
				if !clearToken {
					token = strings.TrimSpace(args[0])
				}
				return a.Session.SetNotificationToken(ctx, token)
			})
		},
	}

	cmd.Flags().BoolVar(&clearToken, "clear", false, "clear the token")

	return cmd
}

func NewNameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "name <display name>",
		Short: "Set the display name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Session.SetName(ctx, strings.Join(args, " "))
			})
		},
	}
}

func NewInviteCommand(opts *RootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Create an invite code for your partner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s := a.Session
				if s.PairId() != "" {
					return fmt.Errorf("already paired (%s), unpair first", s.PairId())
				}

				code, err := a.Pairing.CreateInviteCode(ctx, s.UserId(), s.Name())
				if err != nil {
					return err
				}
				if err := s.SetPendingCode(ctx, code); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)

				if !wait {
					return nil
				}
				return waitForPair(ctx, cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the partner joins")

	return cmd
}

func waitForPair(ctx context.Context, out io.Writer, a *app.App) error {
	paired := make(chan string, 1)
	unsub, err := a.Pairing.WatchPairAssignment(ctx, a.Session.UserId(), func(pairId string) {
		paired <- pairId
	})
	if err != nil {
		return err
	}
	defer unsub()

	select {
	case pairId := <-paired:
		if err := a.Session.AdoptPair(ctx, pairId); err != nil {
			return err
		}
		fmt.Fprintf(out, "paired: %s\n", pairId)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewJoinCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join your partner with their invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				s := a.Session
				pairId, err := a.Pairing.JoinWithCode(ctx, args[0], s.UserId(), s.Name())
				if err != nil {
					return err
				}
				if err := s.AdoptPair(ctx, pairId); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "paired: %s\n", pairId)
				return nil
			})
		},
	}
}

func NewPartnerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "partner",
		Short: "Show your partner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				pairId, err := a.Session.RequirePair()
				if err != nil {
					return err
				}
				p, err := a.Pairing.GetPartner(ctx, pairId, a.Session.UserId())
				if err != nil {
					return err
				}
				out := map[string]string{"id": p.Id, "name": p.Name, "mood": p.Mood}
				return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
					fmt.Fprintf(w, "%s (%s)", p.Name, p.Id)
					if p.Mood != "" {
						fmt.Fprintf(w, " %s", p.Mood)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
}

func NewUnpairCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Leave the current pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Pairing.Unpair(ctx, a.Session)
			})
		},
	}
}
