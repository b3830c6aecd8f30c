// Package notify pushes operator alerts to Bark and Telegram. Every sender gets
// every alert; one failing sender never blocks the others.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Event types the bot emits.
const (
	EventStartup = "startup"
	EventOpen    = "open"
	EventExit    = "exit"
	EventSignal  = "signal" // real trading disabled
	EventHalt    = "halt"
	EventError   = "error"
)

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans one alert out to its senders. A nil Notifier is silent.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	log     *zap.Logger
}

// New builds a notifier. An empty events list allows every event type.
func New(senders []Sender, events []string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		log:     log.With(zap.String("component", "notifier")),
	}
}

// Notify sends to every sender when event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.log.Debug("event filtered out", zap.String("event", event))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error("sender failed", zap.String("sender", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.log.Debug("notification sent", zap.String("sender", s.Name()), zap.String("title", title))
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Senders returns the names of the configured channels.
func (n *Notifier) Senders() []string {
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.senders))
	for _, s := range n.senders {
		names = append(names, s.Name())
	}
	return names
}
