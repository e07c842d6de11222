package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Channel names
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelInApp    = "inapp"
)

// Delivery statuses. A record is "sent" when at least one channel attempt
// succeeded for that recipient.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one campaign: a single creation event fanned out to many
// recipients via DeliveryRecord rows.
type Notification struct {
	ID            int       `json:"id"`
	CampaignKey   uuid.UUID `json:"campaign_key"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Channels      []string  `json:"channels"`
	RelatedFormID null.Int  `json:"related_form_id"`
	CreatedBy     int       `json:"created_by"`
	ScheduledAt   null.Time `json:"scheduled_at"`
	SentAt        null.Time `json:"sent_at"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

// DeliveryRecord is the per-recipient outcome and read state of one campaign.
// The send-outcome dimension is written once at creation; only the read
// dimension is ever mutated, and only false→true.
type DeliveryRecord struct {
	ID              int               `json:"id"`
	NotificationID  int               `json:"notification_id"`
	UserID          int               `json:"user_id"`
	Status          string            `json:"status"`
	ChannelOutcomes map[string]string `json:"channel_outcomes"` // channel -> "ok" | error text
	IsRead          bool              `json:"is_read"`
	ReadAt          null.Time         `json:"read_at"`
	CreatedAt       time.Time         `json:"created_at"` // UTC
}

// DeliveryDetail joins a delivery record with the recipient's profile.
type DeliveryDetail struct {
	DeliveryRecord
	FullName string `json:"full_name"`
	RegNo    string `json:"reg_no"`
}

// Details is the per-campaign drill-down view.
type Details struct {
	Total            int              `json:"total"`
	Read             int              `json:"read"`
	Unread           int              `json:"unread"`
	SuccessRate      int              `json:"successRate"`
	AllRecipients    []DeliveryDetail `json:"allRecipients"`
	ReadRecipients   []DeliveryDetail `json:"readRecipients"`
	UnreadRecipients []DeliveryDetail `json:"unreadRecipients"`
}

// Summary aggregates delivery records for one person (received) or one creator
// (sent).
type Summary struct {
	Total       int `json:"total"`
	Read        int `json:"read"`
	Unread      int `json:"unread"`
	SuccessRate int `json:"successRate"`
}

// CampaignSummary is one row of the reminder-campaign history, derived by
// grouping delivery records, never from a cached counter.
type CampaignSummary struct {
	RelatedFormID   null.Int  `json:"related_form_id"`
	FormTitle       string    `json:"form_title"`
	Title           string    `json:"title"`
	TotalRecipients int       `json:"total_recipients"`
	ReadCount       int       `json:"read_count"`
	UnreadCount     int       `json:"unread_count"`
	SuccessRate     int       `json:"success_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewCampaignSummary derives the unread count and success rate from the
// grouped totals.
func NewCampaignSummary(formID null.Int, formTitle, title string, total, read int, createdAt time.Time) CampaignSummary {
	return CampaignSummary{
		RelatedFormID:   formID,
		FormTitle:       formTitle,
		Title:           title,
		TotalRecipients: total,
		ReadCount:       read,
		UnreadCount:     total - read,
		SuccessRate:     successRate(read, total),
		CreatedAt:       createdAt,
	}
}

type ChannelCount struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

// InboxItem is one received campaign with the recipient's own read state.
type InboxItem struct {
	Notification
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	IsRead      bool      `json:"is_read"`
	ReadAt      null.Time `json:"read_at"`
}

// NewNotification is the payload for an ad hoc campaign. Scheduled campaigns
// must relate to a form: their audience is resolved fresh at trigger time.
type NewNotification struct {
	Title         string     `json:"title" validate:"required"`
	Message       string     `json:"message" validate:"required"`
	Channels      []string   `json:"channels" validate:"required,min=1"`
	UserIDs       []int      `json:"user_ids"`
	RelatedFormID *int       `json:"related_form_id"`
	ScheduledAt   *time.Time `json:"scheduled_at" validate:"omitempty,future"`
}

// RecipientOutcome is the per-recipient dispatch result.
type RecipientOutcome struct {
	UserID        int               `json:"user_id"`
	Status        string            `json:"status"`
	ChannelErrors map[string]string `json:"channel_errors,omitempty"`
}

// DispatchResult is what a dispatch call reports back: per-recipient outcomes
// plus the recipients skipped by the reminder-interval guard.
type DispatchResult struct {
	Notification Notification       `json:"notification"`
	Outcomes     []RecipientOutcome `json:"outcomes"`
	SkippedIDs   []int              `json:"skipped_ids,omitempty"`
}

func successRate(read, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(read)/float64(total)*100 + 0.5)
}
