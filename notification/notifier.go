package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotQueued is returned when a rendered message could not be queued.
var ErrNotQueued = errors.New("notification: message not queued")

// Notifier renders notifications and hands them to a Dispatcher.
type Notifier struct {
	registry   *Registry
	dispatcher *Dispatcher
}

// NewNotifier returns a Notifier. A nil registry uses DefaultRegistry.
func NewNotifier(registry *Registry, dispatcher *Dispatcher) (*Notifier, error) {
	if dispatcher == nil {
		return nil, errors.New("notification: dispatcher is required")
	}
	if registry == nil {
		r, err := DefaultRegistry()
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		registry = r
	}
	return &Notifier{registry: registry, dispatcher: dispatcher}, nil
}

// Notify validates data against the template of kind, renders it and queues
// the message for to. Errors cover validation, rendering and queueing;
// delivery happens later and its failures are only logged.
func (n *Notifier) Notify(ctx context.Context, to string, kind Kind, data any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidData)
	}
	tpl, ok := n.registry.Lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err := tpl.Validate(data); err != nil {
		return err
	}
	body, err := tpl.Render(data)
	if err != nil {
		return err
	}
	msg := Message{Kind: kind, To: []string{to}, Subject: tpl.Subject(), HTML: body}
	if !n.dispatcher.Enqueue(ctx, msg) {
		return ErrNotQueued
	}
	return nil
}

// Dropped returns the number of messages the dispatcher could not queue.
func (n *Notifier) Dropped() uint64 {
	return n.dispatcher.Dropped()
}

// Close drains the dispatcher.
func (n *Notifier) Close() {
	n.dispatcher.Close()
}
