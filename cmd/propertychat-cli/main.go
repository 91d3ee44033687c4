package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/propertychat/internal/chatclient"
	"github.com/tjfontaine/propertychat/internal/chatclient/termview"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "propertychat-cli",
		Usage: "ask questions about the UK housing market",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "http://localhost:8080",
				Usage:   "propertychat server",
				Sources: cli.EnvVars("PROPERTYCHAT_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "bearer token, when the server requires one",
				Sources: cli.EnvVars("PROPERTYCHAT_API_KEY"),
			},
			&cli.BoolFlag{Name: "markdown", Usage: "render finished answers as markdown"},
			&cli.IntFlag{Name: "window", Value: 10, Usage: "messages of history sent with each question"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "propertychat-cli:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	var opts []termview.Option
	if cmd.Bool("markdown") {
		opts = append(opts, termview.WithMarkdown(80))
	}
	printer, err := termview.New(os.Stdout, opts...)
	if err != nil {
		return err
	}

	var clientOpts []chatclient.ClientOption
	if key := cmd.String("api-key"); key != "" {
		clientOpts = append(clientOpts, chatclient.WithAPIKey(key))
	}
	client := chatclient.NewClient(cmd.String("url"), clientOpts...)
	conv := chatclient.NewConversation(int(cmd.Int("window")))

	printWelcome(os.Stdout)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			conv.Reset()
			printWelcome(os.Stdout)
			continue
		case "/help":
			printWelcome(os.Stdout)
			continue
		}
		if n, err := strconv.Atoi(line); err == nil && conv.Empty() && n >= 1 && n <= len(chatclient.DefaultQuestions) {
			line = chatclient.DefaultQuestions[n-1]
			fmt.Println(line)
		}

		if err := ask(ctx, client, conv, printer, line); err != nil {
			var se *chatclient.HTTPStatusError
			if !errors.As(err, &se) {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}

// ask runs one turn. Ctrl-C stops the turn, not the program.
func ask(ctx context.Context, client *chatclient.Client, conv *chatclient.Conversation, printer *termview.Printer, question string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	snap, err := client.Send(turnCtx, conv.Ask(question), printer.Update)
	printer.Finish(snap)
	conv.Record(snap)
	return err
}

func printWelcome(w io.Writer) {
	fmt.Fprintln(w, "How can I help you today?")
	for i, q := range chatclient.DefaultQuestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
	fmt.Fprintln(w, "Type a question, a number to pick one, /clear to start over or /quit.")
}
