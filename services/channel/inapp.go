package channel

import (
	"context"

	"github.com/aceportal/formflow/core/notification"
)

// inAppChannel has no external transport: the delivery record the dispatcher
// writes is itself the in-app notification, surfaced through the inbox query.
type inAppChannel struct{}

var _ notification.Channel = (*inAppChannel)(nil)

func NewInApp() notification.Channel { return inAppChannel{} }

func (inAppChannel) Name() string { return notification.ChannelInApp }

func (inAppChannel) Send(context.Context, notification.Recipient, notification.Message) error {
	return nil
}
