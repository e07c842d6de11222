package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/notification"
)

var whatsAppBaseURL = "https://graph.facebook.com/v18.0"

type whatsAppChannel struct {
	token       string
	phoneID     string
	countryCode string
	client      *http.Client
}

var _ notification.Channel = (*whatsAppChannel)(nil)

// NewWhatsApp returns the chat transport backed by the WhatsApp Cloud API.
// The per-call deadline comes from the dispatcher's context.
func NewWhatsApp(conf *core.Config) notification.Channel {
	return &whatsAppChannel{
		token:       conf.Channels.WhatsAppToken,
		phoneID:     conf.Channels.WhatsAppPhoneID,
		countryCode: conf.Channels.WhatsAppCountryCode,
		client:      &http.Client{},
	}
}

func (ch *whatsAppChannel) Name() string { return notification.ChannelWhatsApp }

type waTemplate struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

func (ch *whatsAppChannel) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Message) error {
	if rcpt.Phone == "" {
		return errors.New("recipient has no phone number")
	}

	payload := waRequest{
		MessagingProduct: "whatsapp",
		To:               ch.formatNumber(rcpt.Phone),
		Type:             "template",
	}
	payload.Template.Name = "form_reminder"
	payload.Template.Language.Code = "en_US"

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding whatsapp payload")
	}

	url := fmt.Sprintf("%s/%s/messages", whatsAppBaseURL, ch.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building whatsapp request")
	}
	req.Header.Set("Authorization", "Bearer "+ch.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ch.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "whatsapp request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return errors.Errorf("whatsapp responded %d: %s", resp.StatusCode, data)
	}
	return nil
}

// formatNumber prefixes the configured country code when absent; numbers are
// stored inconsistently (with/without +, with/without country code).
func (ch *whatsAppChannel) formatNumber(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), "+", "")
	if strings.HasPrefix(phone, ch.countryCode) {
		return phone
	}
	return ch.countryCode + phone
}
