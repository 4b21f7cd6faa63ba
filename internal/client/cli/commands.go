package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/pocketchat/pocketchat/internal/client/kvstore"
	"github.com/pocketchat/pocketchat/internal/client/models"
)

// getTokenFn is a test seam for the no-echo token prompt.
var getTokenFn = GetToken

// destinationHost validates the URL argument of a command and returns its
// host. An empty host means the argument was unusable; the user has already
// been told.
func (a *App) destinationHost(rawURL string) string {
	host := kvstore.HostOf(rawURL)
	if host == "" {
		fmt.Fprintf(a.out, "Cannot parse destination URL %q\n", rawURL)
	}
	return host
}

// Login prompts for an access token (without echo) and stores it for the
// destination.
func (a *App) Login(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: login <url>")
		return nil
	}
	host := a.destinationHost(args[0])
	if host == "" {
		return nil
	}

	token, err := getTokenFn(a.out)
	if err != nil {
		return err
	}
	if token == "" {
		fmt.Fprintln(a.out, "Empty token, nothing stored")
		return nil
	}

	if err := a.creds.SetToken(ctx, host, token); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Credential stored for %s\n", host)
	return nil
}

// Logout forgets the stored token for the destination.
func (a *App) Logout(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: logout <url>")
		return nil
	}
	host := a.destinationHost(args[0])
	if host == "" {
		return nil
	}

	if err := a.creds.ClearToken(ctx, host); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Credential cleared for %s\n", host)
	return nil
}

// Send queues a text message for the destination. Delivery happens on the
// next drain pass.
func (a *App) Send(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: send <url> <text...>")
		return nil
	}
	host := a.destinationHost(args[0])
	if host == "" {
		return nil
	}

	text := strings.Join(args[1:], " ")
	item := models.QueueItem{Payload: models.NewTextPayload(text)}
	if err := a.outbox.Enqueue(ctx, host, item); err != nil {
		return err
	}

	n, err := a.outbox.Count(ctx, host)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Queued for %s (%d pending)\n", host, n)
	return nil
}

// Drain tries to deliver the destination's queued messages.
func (a *App) Drain(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: drain <url>")
		return nil
	}

	res, err := a.outbox.Drain(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sent %d, %d remaining\n", res.Sent, res.Remaining)
	return nil
}

// Queue prints the destination's pending messages, oldest first.
func (a *App) Queue(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: queue <url>")
		return nil
	}
	host := a.destinationHost(args[0])
	if host == "" {
		return nil
	}

	items, err := a.outbox.List(ctx, host)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Queue is empty")
		return nil
	}

	for i, item := range items {
		line := fmt.Sprintf("%d. [%s] %s attempts=%d", i+1, item.ID,
			item.CreatedAt.Format("2006-01-02 15:04:05"), item.Attempts)
		if item.LastError != "" {
			line += " lastError=" + item.LastError
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// Sync pulls conversations from the destination into the local cache. With
// the "full" argument, sync progress is discarded first and everything is
// fetched again.
func (a *App) Sync(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: sync <url> [full]")
		return nil
	}
	force := len(args) > 1 && args[1] == "full"

	res, err := a.engine.ManualSync(ctx, args[0], force)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(a.out, "No credential stored for this destination; run 'login' first")
		return nil
	}
	fmt.Fprintf(a.out, "Synced %d conversations (%d messages)\n", res.Conversations, res.Messages)
	return nil
}

// Recent lists cached conversations, most recently used first.
func (a *App) Recent(ctx context.Context) error {
	entries, err := a.cache.ListIndex(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Cache is empty")
		return nil
	}

	const maxShown = 20
	for i, e := range entries {
		if i == maxShown {
			fmt.Fprintf(a.out, "... and %d more\n", len(entries)-maxShown)
			break
		}
		title := e.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(a.out, "%d. %s  %s  %d bytes\n", i+1, title,
			e.LastAccess.Format("2006-01-02 15:04:05"), e.SizeBytes)
	}
	return nil
}

// Reset clears the destination's sync progress so that the next sync starts
// from scratch.
func (a *App) Reset(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.out, "Usage: reset <url>")
		return nil
	}

	if err := a.engine.ForceSyncReset(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Sync progress cleared")
	return nil
}
