package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/session"
	"github.com/ashureev/offer-assistant/internal/stream"
)

const (
	cmdQuit      = "/quit"
	cmdReconnect = "/reconnect"
	cmdNew       = "/new"
)

// chatCmd runs an interactive terminal conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant from the terminal",
	Long: `Reads one message per line from stdin and prints the assistant's replies.
Offers found in a reply are drawn as cards.

Commands:
  /reconnect  force a fresh connection (also retries after failure)
  /new        start a new conversation
  /quit       exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// chatSession is the session surface used by the chat loop.
type chatSession interface {
	Send(text string) bool
	Reconnect()
	ClearMessages()
	LastError() error
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newPrinter(cmd.OutOrStdout())
	sess := session.New(cfg.SessionConfig(), cfg.Transport(), slog.Default())
	defer sess.Close()

	board := stream.NewOfferBoard()
	unsubscribe := sess.Subscribe(func(u session.Update) {
		switch u.Kind {
		case session.UpdateState:
			out.state(u.State, sess.Status())
		case session.UpdateMessage:
			out.message(u.Message)
			if bot, ok := u.Message.(domain.BotMessage); ok {
				if state, changed := board.Apply(bot); changed {
					out.offers(state)
				}
			}
		case session.UpdateCleared:
			board.Reset()
			out.notice("Nouvelle conversation")
		}
	})
	defer unsubscribe()

	sess.Connect()
	return chatLoop(ctx, cmd.InOrStdin(), sess, out)
}

// chatLoop reads lines until EOF, /quit or ctx is done.
func chatLoop(ctx context.Context, in io.Reader, sess chatSession, out *printer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case cmdQuit:
				return nil
			case cmdReconnect:
				sess.Reconnect()
			case cmdNew:
				sess.ClearMessages()
			default:
				if !sess.Send(line) {
					out.err(sess.LastError())
				}
			}
		}
	}
}
