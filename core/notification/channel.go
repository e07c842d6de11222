package notification

import "context"

// Recipient is the contact surface a channel transport needs; it carries no
// domain behavior so transports stay decoupled from the user model.
type Recipient struct {
	ID    int
	Name  string
	Email string
	Phone string
	RegNo string
}

// Message is the rendered content handed to every channel of a campaign.
type Message struct {
	Title       string
	Body        string
	FormTitle   string
	FormLink    string
	SenderName  string
	SenderEmail string
}

// Channel is one delivery mechanism (email-like, chat-like, in-app). New
// channels plug into the dispatcher through this interface without touching
// the fan-out logic. Send must honor ctx cancellation/deadline: transports are
// external network calls and are individually time-bounded by the dispatcher.
type Channel interface {
	Name() string
	Send(ctx context.Context, rcpt Recipient, msg Message) error
}
