package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vetlink/companion/backend/internal/app"
	"github.com/vetlink/companion/backend/internal/model/role"
	chatService "github.com/vetlink/companion/backend/internal/service/chat"
)

var (
	chatRole string
	chatUser string
)

// chatCmd runs an interactive conversation against the configured gateway
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an assistant role in the terminal",
	Long: `Open a conversation and read messages from stdin.

Commands inside the session:
  /accept   accept a pending escalation offer
  /decline  decline a pending escalation offer
  /quit     end the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = application.Close(drainCtx)
		}()

		conv, err := application.Chat.CreateSession(ctx, chatRole, chatUser)
		if err != nil {
			return err
		}
		return runChat(ctx, conv, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatRole, "role", role.Veteran, "assistant role id")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "user id used to load a profile")
}

func runChat(ctx context.Context, conv *chatService.Conversation, in io.Reader, out io.Writer) error {
	snap := conv.Snapshot()
	for _, m := range snap.Messages {
		fmt.Fprintf(out, "%s> %s\n", conv.Role().Name, m.Text)
	}
	printSuggestions(out, snap.ActiveSuggestions)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/accept", "/decline":
			ack, ok := conv.RespondToEscalation(ctx, line == "/accept")
			if !ok {
				fmt.Fprintln(out, "(no escalation offer is pending)")
				continue
			}
			if ack.Text != "" {
				fmt.Fprintf(out, "%s> %s\n", conv.Role().Name, ack.Text)
			}
			continue
		}

		reply, ok := conv.SendMessage(ctx, line)
		if !ok {
			fmt.Fprintln(out, "(message not accepted)")
			continue
		}
		fmt.Fprintf(out, "%s> %s\n", conv.Role().Name, reply.Text)
		if reply.Flagged {
			fmt.Fprintf(out, "  [flagged: %s %.2f]\n", reply.Sentiment, reply.SentimentScore)
		}
		printSuggestions(out, reply.Suggestions)

		if offer := conv.Snapshot().PendingEscalation; offer != nil {
			fmt.Fprintf(out, "  [escalation offered: %s] type /accept or /decline\n", offer.Reason)
		}
	}
}

func printSuggestions(out io.Writer, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(out, "  suggestions: %s\n", strings.Join(suggestions, " | "))
}
