package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
)

// ReminderMailData is the template context for the form-reminder email body.
type ReminderMailData struct {
	RecipientName string
	RegNo         string
	FormTitle     string
	FormLink      string
	SenderName    string
}

var reminderTmpl = htmltmpl.Must(htmltmpl.New("form_reminder").Parse(`<div style="font-family: Arial, sans-serif;">
  <h2>Hello {{.RecipientName}},</h2>
  {{if .RegNo}}<p><strong>Register Number:</strong> {{.RegNo}}</p>{{end}}
  <p>You have been assigned a new form:</p>
  <h3>{{.FormTitle}}</h3>
  <p>Please click the button below to complete your form:</p>
  <a href="{{.FormLink}}"
     style="display:inline-block;padding:10px 20px;background:#2563eb;color:white;text-decoration:none;border-radius:6px;">
     Fill Form
  </a>
  <p>If the button does not work, copy this link:</p>
  <p>{{.FormLink}}</p>
  <br/>
  <p>Regards,</p>
  <p>{{.SenderName}}</p>
</div>`))

type EmailMessage struct {
	To      []mail.Address
	Subject string
	BodyStr string // simple text/plain, non-templated content

	// templated content
	TemplateData *ReminderMailData
	TextContent  string
	HTMLContent  string
}

// Render populates TextContent/HTMLContent from BodyStr and TemplateData.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateData != nil {
		var buff bytes.Buffer
		if err := reminderTmpl.Execute(&buff, m.TemplateData); err != nil {
			return err
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.TextContent != "" || m.HTMLContent != "" || m.BodyStr != ""
}
