// Package push delivers schedule notifications to respondents, either through
// the external push service or to clients connected over SSE.
package push

import (
	"context"

	"go.uber.org/zap"
)

// Notification kinds
const (
	KindScheduleUpdated = "schedule-updated"
	KindAppletUpdated   = "applet-updated"
	KindAppletDeleted   = "applet-deleted"
	KindReminder        = "reminder"
	KindAlert           = "alert"
)

// Notification is addressed to a set of users of one applet.
type Notification struct {
	AppletID string   `json:"applet_id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Kind     string   `json:"type"`
	UserIDs  []string `json:"user_ids"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier. Delivery failures are
// logged and never returned to the caller.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	var nn []Notifier
	for _, n := range notifiers {
		if n != nil {
			nn = append(nn, n)
		}
	}
	return &Multi{notifiers: nn, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, n Notification) error {
	if len(n.UserIDs) == 0 {
		return nil
	}
	for _, nt := range m.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			m.logger.Warn("push notification failed",
				zap.String("applet_id", n.AppletID),
				zap.String("kind", n.Kind),
				zap.Int("recipients", len(n.UserIDs)),
				zap.Error(err),
			)
		}
	}
	return nil
}
