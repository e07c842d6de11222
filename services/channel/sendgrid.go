package channel

import (
	"context"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/notification"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type sendgridChannel struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ notification.Channel = (*sendgridChannel)(nil)

// NewSendgridEmail returns the email transport backed by Sendgrid.
func NewSendgridEmail(conf *core.Config) notification.Channel {
	return &sendgridChannel{
		key:        conf.Channels.SendgridAPIKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (ch *sendgridChannel) Name() string { return notification.ChannelEmail }

func (ch *sendgridChannel) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Message) error {
	if rcpt.Email == "" {
		return errors.New("recipient has no email address")
	}

	em := core.EmailMessage{
		To:      []mail.Address{{Name: rcpt.Name, Address: rcpt.Email}},
		Subject: msg.Title,
		BodyStr: msg.Body,
	}
	if msg.FormTitle != "" {
		em.Subject = "Form Assigned: " + msg.FormTitle
		em.TemplateData = &core.ReminderMailData{
			RecipientName: rcpt.Name,
			RegNo:         rcpt.RegNo,
			FormTitle:     msg.FormTitle,
			FormLink:      msg.FormLink,
			SenderName:    msg.SenderName,
		}
	}
	if err := em.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}

	sgm, err := ch.prepare(em)
	if err != nil {
		return err
	}
	req := sendgrid.GetRequest(ch.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(sgm)
	respc, errc := sendgrid.MakeRequestAsync(req)
	select {
	case resp := <-respc:
		if resp.StatusCode >= http.StatusBadRequest {
			return errors.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
		}
		return nil
	case err = <-errc:
		return errors.Wrap(err, "sendgrid request")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sendgrid request")
	}
}

func (ch *sendgridChannel) prepare(em core.EmailMessage) (*sgmail.SGMailV3, error) {
	if !em.HasRecipients() || !em.HasContent() {
		return nil, errors.New("email message has no recipients or content")
	}

	p := sgmail.NewPersonalization()
	p.Subject = ch.subjPrefix + em.Subject
	for _, to := range em.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(ch.from)
	m.AddPersonalizations(p)

	if em.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", em.TextContent))
	}
	if em.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", em.HTMLContent))
	}
	return m, nil
}
