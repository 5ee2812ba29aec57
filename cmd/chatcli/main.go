package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatrelay/internal/client"
	"chatrelay/internal/commands"
)

const usage = `Usage: chatcli [-server URL] -user ID <command> [args]

Commands:
  sync <displayName> [avatarUrl] [email]   create or update your profile
  start <userId>                           open a direct conversation
  list                                     list your conversations
  send <conversationId> <text...>          send a message
  tail <conversationId>                    follow a conversation
`

func run(ctx context.Context) error {
	server := flag.String("server", getEnv("CHAT_SERVER", "http://localhost:8080"), "Chat server base URL")
	user := flag.String("user", os.Getenv("CHAT_USER"), "User ID to act as")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 || *user == "" {
		flag.Usage()
		return errors.New("missing command or user")
	}

	api := client.NewAPI(*server, *user, nil)
	out := os.Stdout

	switch cmd, rest := args[0], args[1:]; cmd {
	case "sync":
		if len(rest) < 1 {
			return errors.New("sync requires a display name")
		}
		return commands.Sync(ctx, api, out, rest[0], arg(rest, 1), arg(rest, 2))
	case "start":
		if len(rest) != 1 {
			return errors.New("start requires a user id")
		}
		return commands.Start(ctx, api, out, rest[0])
	case "list":
		return commands.List(ctx, api, out)
	case "send":
		if len(rest) < 2 {
			return errors.New("send requires a conversation id and text")
		}
		return commands.Send(ctx, api, out, rest[0], strings.Join(rest[1:], " "))
	case "tail":
		if len(rest) != 1 {
			return errors.New("tail requires a conversation id")
		}
		socket, err := client.Dial(ctx, *server, *user)
		if err != nil {
			return err
		}
		defer func() { _ = socket.Close() }()
		return commands.Tail(ctx, api, socket, out, rest[0])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
