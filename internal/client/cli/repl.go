package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight
// stub.
type execIface interface {
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	Send(ctx context.Context, args []string) error
	Drain(ctx context.Context, args []string) error
	Queue(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Recent(ctx context.Context) error
	Reset(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  login <url>             store an access token for a destination
  logout <url>            forget the stored token
  send <url> <text...>    queue a message for delivery
  drain <url>             deliver queued messages
  queue <url>             show the pending queue
  sync <url> [full]       pull conversations into the local cache
  recent                  list cached conversations
  reset <url>             clear sync progress for a destination
  exit | quit             leave the program`

// runREPL starts a simple read-eval-print loop.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Errors returned by command handlers are printed but never abort the loop.
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner, w io.Writer) {
	for {
		fmt.Fprint(w, "pc> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)

		case "login":
			err = a.Login(ctx, args)

		case "logout":
			err = a.Logout(ctx, args)

		case "send":
			err = a.Send(ctx, args)

		case "drain":
			err = a.Drain(ctx, args)

		case "queue":
			err = a.Queue(ctx, args)

		case "sync":
			err = a.Sync(ctx, args)

		case "recent":
			err = a.Recent(ctx)

		case "reset":
			err = a.Reset(ctx, args)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
	}
}
