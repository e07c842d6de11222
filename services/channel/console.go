package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aceportal/formflow/core/notification"
)

// SentMessage is one message captured by the console channel.
type SentMessage struct {
	Channel   string
	Recipient notification.Recipient
	Message   notification.Message
}

// Console prints messages instead of delivering them; used in DEV and
// as a capture target in tests. It can impersonate any channel name.
type Console struct {
	name          string
	disableOutput bool

	mu   sync.Mutex
	sent []SentMessage
}

var _ notification.Channel = (*Console)(nil)

func NewConsole(name string, disableOutput ...bool) *Console {
	var disable bool
	if len(disableOutput) > 0 {
		disable = disableOutput[0]
	}
	return &Console{name: name, disableOutput: disable}
}

func (ch *Console) Name() string { return ch.name }

func (ch *Console) Send(_ context.Context, rcpt notification.Recipient, msg notification.Message) error {
	ch.mu.Lock()
	ch.sent = append(ch.sent, SentMessage{Channel: ch.name, Recipient: rcpt, Message: msg})
	ch.mu.Unlock()

	if !ch.disableOutput {
		out := new(strings.Builder)
		fmt.Fprintf(out, "--- %s ---\n", strings.ToUpper(ch.name))
		fmt.Fprintf(out, "To: %s <%s> (%s)\n", rcpt.Name, rcpt.Email, rcpt.Phone)
		fmt.Fprintf(out, "Title: %s\n", msg.Title)
		fmt.Fprintf(out, "Body: %s\n", msg.Body)
		if msg.FormLink != "" {
			fmt.Fprintf(out, "Form: %s (%s)\n", msg.FormTitle, msg.FormLink)
		}
		fmt.Print(out.String())
	}
	return nil
}

// Sent returns a snapshot of the captured messages.
func (ch *Console) Sent() []SentMessage {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]SentMessage, len(ch.sent))
	copy(out, ch.sent)
	return out
}
