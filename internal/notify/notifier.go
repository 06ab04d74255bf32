// Package notify fans auction lifecycle events out to operator chat channels
// (Telegram, Discord), optionally filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify forwards only allowed event
// types; an empty allow list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders, restricted to events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders an auction event and sends it.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.AuctionEvent) error {
	title, message := FormatEvent(ev)
	return n.Notify(ctx, string(ev.Type), title, message)
}

// FormatEvent renders ev as a title and a plain-text body.
func FormatEvent(ev domain.AuctionEvent) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "auction %s\nseller %s\n", short(ev.Auction), short(ev.Authority))

	switch ev.Type {
	case domain.EventInitialized:
		fmt.Fprintf(&b, "lot %d tokens of %s\nprice %s SOL falling to 0 between %d and %d",
			ev.Amount, short(ev.Mint), domain.LamportsToSOL(uint64(ev.StartingPrice)), ev.StartingTime, ev.EndingTime)
		return "Auction opened", b.String()
	case domain.EventSettled:
		buyer := "unknown"
		if ev.Buyer != nil {
			buyer = short(*ev.Buyer)
		}
		fmt.Fprintf(&b, "buyer %s took %d tokens for %s SOL", buyer, ev.Amount, domain.LamportsToSOL(ev.Price))
		return "Auction settled", b.String()
	case domain.EventReclaimed:
		fmt.Fprintf(&b, "seller reclaimed %d tokens", ev.Amount)
		return "Auction closed", b.String()
	default:
		return string(ev.Type), b.String()
	}
}

func short(pk domain.Pubkey) string {
	s := pk.String()
	return s[:10] + "…" + s[len(s)-4:]
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
