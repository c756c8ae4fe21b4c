package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

// Kind of alert carried by a notification.
const (
	KindDown     = "down"
	KindRecovery = "recovery"
	// KindUp is a site coming online without a preceding outage.
	KindUp = "up"
)

// Alert is one notification about a status transition. Title and Text are
// pre-rendered for chat sinks; structured sinks use Transition.
type Alert struct {
	Kind       string
	Title      string
	Text       string
	Transition domain.Transition
}

type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every sink and reports all failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, a))
	}
	return err
}
