package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/canvas"
	"github.com/zlnvch/duo/messaging"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/store"
)

func NewSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>",
		Short: "Send a note to your partner",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return send(ctx, cmd.OutOrStdout(), a, strings.Join(args, " "), models.KindText)
			})
		},
	}
}

func NewDoodleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doodle <strokes.json|->",
		Short: "Send a drawing read from a JSON stroke file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				err := send(ctx, cmd.OutOrStdout(), a, string(content), models.KindDrawing)
				if errors.Is(err, messaging.ErrDailyDoodleLimit) {
					next := messaging.NextResetTime(time.Now())
					return fmt.Errorf("%w, next doodle at %s", err, next.Format(time.Kitchen))
				}
				return err
			})
		},
	}
}

func send(ctx context.Context, out io.Writer, a *app.App, content string, kind models.MessageKind) error {
	pairId, err := a.Session.RequirePair()
	if err != nil {
		return err
	}
	m, err := a.Messages.Send(ctx, pairId, a.Session.UserId(), a.Session.Name(), content, kind)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, m.Id)
	return nil
}

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var archived bool
	var limit int32

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the messages of the pair, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				pairId, err := a.Session.RequirePair()
				if err != nil {
					return err
				}

				var msgs []models.Message
				if archived {
					msgs, err = a.Messages.ArchivedHistory(ctx, pairId, limit)
				} else {
					msgs, err = a.Messages.History(ctx, pairId)
					if limit > 0 && int(limit) < len(msgs) {
						msgs = msgs[:limit]
					}
				}
				if err != nil {
					return err
				}

				return opts.print(cmd.OutOrStdout(), msgs, func(w io.Writer) {
					for _, m := range msgs {
						printMessage(w, m)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&archived, "archived", false, "read from the durable archive")
	cmd.Flags().Int32VarP(&limit, "limit", "n", 50, "maximum number of messages")

	return cmd
}

func printMessage(w io.Writer, m models.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
	fmt.Fprintf(w, "%s  %s  %s: %s\n", m.Id, ts, m.AuthorName, messaging.Preview(m))
}

func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <message id>",
		Short: "Delete a message from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				pairId, err := a.Session.RequirePair()
				if err != nil {
					return err
				}
				return a.Messages.DeleteMessage(ctx, pairId, args[0])
			})
		},
	}
}

func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print partner activity as it happens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				return watch(ctx, cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default: until interrupted)")

	return cmd
}

func watch(ctx context.Context, out io.Writer, a *app.App) error {
	s := a.Session
	pairId, err := s.RequirePair()
	if err != nil {
		return err
	}
	partner, err := a.Pairing.GetPartner(ctx, pairId, s.UserId())
	if err != nil {
		return err
	}

	events := make(chan string, 64)
	emit := func(line string) {
		select {
		case events <- line:
		default:
		}
	}

	var unsubs []store.Unsubscribe
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()
	subscribe := func(unsub store.Unsubscribe, err error) error {
		if err != nil {
			return err
		}
		unsubs = append(unsubs, unsub)
		return nil
	}

	if err := subscribe(a.Messages.SubscribeLatest(ctx, pairId, func(latest models.LatestMessage, ok bool) {
		if ok && latest.AuthorId != s.UserId() {
			emit(fmt.Sprintf("%s: %s", latest.AuthorName, messaging.Preview(models.Message{Content: latest.Content, Kind: latest.Kind})))
		}
	})); err != nil {
		return err
	}
	if err := subscribe(a.Messages.MirrorLatest(ctx, pairId, s.UserId())); err != nil {
		return err
	}
	if err := subscribe(a.Presence.SubscribeNudges(ctx, pairId, s.UserId(), func(n models.Nudge) {
		emit(fmt.Sprintf("%s nudged you", n.SenderName))
	})); err != nil {
		return err
	}
	if err := subscribe(a.Presence.WatchMood(ctx, partner.Id, func(mood string, ok bool) {
		if ok {
			emit(fmt.Sprintf("%s is feeling %s", partner.Name, mood))
		}
	})); err != nil {
		return err
	}
	if err := subscribe(canvas.WatchActivity(ctx, a.Remote(), pairId, func(activity models.CanvasActivity) {
		if activity.UserId != s.UserId() {
			emit(fmt.Sprintf("%s painted on the canvas", partner.Name))
		}
	})); err != nil {
		return err
	}

	for {
		select {
		case line := <-events:
			fmt.Fprintln(out, line)
		case <-ctx.Done():
			return nil
		}
	}
}
