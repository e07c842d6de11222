package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core/notification"
)

// channelsJSON maps a campaign's channel list to its JSONB column.
type channelsJSON []string

func (c channelsJSON) Value() (driver.Value, error) { return jsonbValue([]string(c)) }
func (c *channelsJSON) Scan(src interface{}) error  { return jsonbScan(src, c) }

// outcomesJSON maps per-channel outcomes to their JSONB column.
type outcomesJSON map[string]string

func (o outcomesJSON) Value() (driver.Value, error) { return jsonbValue(map[string]string(o)) }
func (o *outcomesJSON) Scan(src interface{}) error  { return jsonbScan(src, o) }

type notificationRow struct {
	ID            int          `db:"id"`
	CampaignKey   uuid.UUID    `db:"campaign_key"`
	Title         string       `db:"title"`
	Message       string       `db:"message"`
	Channels      channelsJSON `db:"channels"`
	RelatedFormID null.Int     `db:"related_form_id"`
	CreatedBy     int          `db:"created_by"`
	ScheduledAt   null.Time    `db:"scheduled_at"`
	SentAt        null.Time    `db:"sent_at"`
	CreatedAt     time.Time    `db:"created_at"`
}

func (r notificationRow) unpack() notification.Notification {
	return notification.Notification{
		ID:            r.ID,
		CampaignKey:   r.CampaignKey,
		Title:         r.Title,
		Message:       r.Message,
		Channels:      r.Channels,
		RelatedFormID: r.RelatedFormID,
		CreatedBy:     r.CreatedBy,
		ScheduledAt:   r.ScheduledAt,
		SentAt:        r.SentAt,
		CreatedAt:     r.CreatedAt,
	}
}

func unpackNotificationRows(rows []notificationRow) []notification.Notification {
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.unpack())
	}
	return ns
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	query := `
INSERT INTO notifications (campaign_key, title, message, channels, related_form_id, created_by, scheduled_at, sent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := repo.db.QueryRowContext(
		ctx, query,
		n.CampaignKey, n.Title, n.Message, channelsJSON(n.Channels),
		n.RelatedFormID, n.CreatedBy, n.ScheduledAt, n.SentAt, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

func (repo notificationRepository) GetNotificationByID(ctx context.Context, id int) (notification.Notification, error) {
	var row notificationRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM notifications WHERE id = $1`, id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "finding notification by ID")
	}
	return row.unpack(), nil
}

func (repo notificationRepository) QueryByCreator(ctx context.Context, creatorID int) ([]notification.Notification, error) {
	var rows []notificationRow
	query := `SELECT * FROM notifications WHERE created_by = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, query, creatorID); err != nil {
		return nil, errors.Wrap(err, "querying sent notifications")
	}
	return unpackNotificationRows(rows), nil
}

func (repo notificationRepository) QueryInbox(ctx context.Context, userID int) ([]notification.InboxItem, error) {
	query := `
SELECT n.*, u.full_name AS sender_name, u.email AS sender_email, d.is_read, d.read_at
FROM delivery_records d
JOIN notifications n ON n.id = d.notification_id
JOIN users u ON u.id = n.created_by
WHERE d.user_id = $1
ORDER BY n.created_at DESC`
	var rows []struct {
		notificationRow
		SenderName  string    `db:"sender_name"`
		SenderEmail string    `db:"sender_email"`
		IsRead      bool      `db:"is_read"`
		ReadAt      null.Time `db:"read_at"`
	}
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying inbox")
	}
	items := make([]notification.InboxItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, notification.InboxItem{
			Notification: r.unpack(),
			SenderName:   r.SenderName,
			SenderEmail:  r.SenderEmail,
			IsRead:       r.IsRead,
			ReadAt:       r.ReadAt,
		})
	}
	return items, nil
}

func (repo notificationRepository) MarkSent(ctx context.Context, id int, at time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE notifications SET sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return errors.Wrap(err, "marking notification sent")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo notificationRepository) DueNotifications(ctx context.Context, now time.Time) ([]notification.Notification, error) {
	var rows []notificationRow
	query := `
SELECT *
FROM notifications
WHERE scheduled_at IS NOT NULL AND scheduled_at <= $1 AND sent_at IS NULL
ORDER BY scheduled_at`
	if err := repo.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, errors.Wrap(err, "querying due notifications")
	}
	return unpackNotificationRows(rows), nil
}

func (repo notificationRepository) CreateDeliveryRecords(ctx context.Context, recs []notification.DeliveryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO delivery_records (notification_id, user_id, status, channel_outcomes, is_read, read_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (notification_id, user_id) DO NOTHING`
	for _, rec := range recs {
		_, err = tx.ExecContext(
			ctx, query,
			rec.NotificationID, rec.UserID, rec.Status, outcomesJSON(rec.ChannelOutcomes),
			rec.IsRead, rec.ReadAt, rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "creating delivery record")
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo notificationRepository) GetDeliveryDetails(ctx context.Context, notificationID int) ([]notification.DeliveryDetail, error) {
	query := `
SELECT d.*, u.full_name, u.reg_no
FROM delivery_records d
JOIN users u ON u.id = d.user_id
WHERE d.notification_id = $1
ORDER BY u.full_name`
	var rows []struct {
		ID              int          `db:"id"`
		NotificationID  int          `db:"notification_id"`
		UserID          int          `db:"user_id"`
		Status          string       `db:"status"`
		ChannelOutcomes outcomesJSON `db:"channel_outcomes"`
		IsRead          bool         `db:"is_read"`
		ReadAt          null.Time    `db:"read_at"`
		CreatedAt       time.Time    `db:"created_at"`
		FullName        string       `db:"full_name"`
		RegNo           string       `db:"reg_no"`
	}
	if err := repo.db.SelectContext(ctx, &rows, query, notificationID); err != nil {
		return nil, errors.Wrap(err, "querying delivery details")
	}
	details := make([]notification.DeliveryDetail, 0, len(rows))
	for _, r := range rows {
		details = append(details, notification.DeliveryDetail{
			DeliveryRecord: notification.DeliveryRecord{
				ID:              r.ID,
				NotificationID:  r.NotificationID,
				UserID:          r.UserID,
				Status:          r.Status,
				ChannelOutcomes: r.ChannelOutcomes,
				IsRead:          r.IsRead,
				ReadAt:          r.ReadAt,
				CreatedAt:       r.CreatedAt,
			},
			FullName: r.FullName,
			RegNo:    r.RegNo,
		})
	}
	return details, nil
}

func (repo notificationRepository) MarkDeliveryRead(ctx context.Context, notificationID, userID int, at time.Time) (bool, error) {
	query := `
UPDATE delivery_records
SET is_read = TRUE, read_at = $1
WHERE notification_id = $2 AND user_id = $3 AND NOT is_read`
	res, err := repo.db.ExecContext(ctx, query, at, notificationID, userID)
	if err != nil {
		return false, errors.Wrap(err, "marking delivery read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "marking delivery read")
	}
	if n > 0 {
		return true, nil
	}

	// zero rows is either an already-read record or no record at all
	var exists bool
	query = `SELECT EXISTS (SELECT 1 FROM delivery_records WHERE notification_id = $1 AND user_id = $2)`
	if err = repo.db.GetContext(ctx, &exists, query, notificationID, userID); err != nil {
		return false, errors.Wrap(err, "marking delivery read")
	}
	if !exists {
		return false, notification.ErrDeliveryNotFound
	}
	return false, nil
}

func (repo notificationRepository) RecipientCounts(ctx context.Context, userID int) (int, int, error) {
	var row struct {
		Total int `db:"total"`
		Read  int `db:"read"`
	}
	query := `
SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_read) AS read
FROM delivery_records
WHERE user_id = $1`
	if err := repo.db.GetContext(ctx, &row, query, userID); err != nil {
		return 0, 0, errors.Wrap(err, "counting received deliveries")
	}
	return row.Total, row.Read, nil
}

func (repo notificationRepository) CreatorCounts(ctx context.Context, creatorID int) (int, int, error) {
	var row struct {
		Total int `db:"total"`
		Read  int `db:"read"`
	}
	query := `
SELECT COUNT(d.id) AS total, COUNT(d.id) FILTER (WHERE d.is_read) AS read
FROM delivery_records d
JOIN notifications n ON n.id = d.notification_id
WHERE n.created_by = $1`
	if err := repo.db.GetContext(ctx, &row, query, creatorID); err != nil {
		return 0, 0, errors.Wrap(err, "counting sent deliveries")
	}
	return row.Total, row.Read, nil
}

func (repo notificationRepository) CampaignHistory(ctx context.Context) ([]notification.CampaignSummary, error) {
	query := `
SELECT n.related_form_id, COALESCE(f.title, '') AS form_title, n.title,
       COUNT(d.id) AS total_recipients,
       COUNT(d.id) FILTER (WHERE d.is_read) AS read_count,
       MAX(n.created_at) AS created_at
FROM notifications n
JOIN delivery_records d ON d.notification_id = n.id
LEFT JOIN forms f ON f.id = n.related_form_id
GROUP BY n.related_form_id, f.title, n.title
ORDER BY MAX(n.created_at) DESC`
	var rows []struct {
		RelatedFormID   null.Int  `db:"related_form_id"`
		FormTitle       string    `db:"form_title"`
		Title           string    `db:"title"`
		TotalRecipients int       `db:"total_recipients"`
		ReadCount       int       `db:"read_count"`
		CreatedAt       time.Time `db:"created_at"`
	}
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying campaign history")
	}
	history := make([]notification.CampaignSummary, 0, len(rows))
	for _, r := range rows {
		history = append(history, notification.NewCampaignSummary(
			r.RelatedFormID, r.FormTitle, r.Title, r.TotalRecipients, r.ReadCount, r.CreatedAt,
		))
	}
	return history, nil
}

func (repo notificationRepository) ChannelStats(ctx context.Context, formID int) ([]notification.ChannelCount, error) {
	query := `
SELECT ch.value AS channel, COUNT(DISTINCT n.id) AS count
FROM notifications n
CROSS JOIN LATERAL jsonb_array_elements_text(n.channels) AS ch(value)
WHERE n.related_form_id = $1
GROUP BY ch.value
ORDER BY count DESC`
	var stats []notification.ChannelCount
	if err := repo.db.SelectContext(ctx, &stats, query, formID); err != nil {
		return nil, errors.Wrap(err, "querying channel stats")
	}
	return stats, nil
}

func (repo notificationRepository) LastDeliveries(ctx context.Context, formID int, userIDs []int) (map[int]time.Time, error) {
	query := `
SELECT d.user_id, MAX(d.created_at) AS last_at
FROM delivery_records d
JOIN notifications n ON n.id = d.notification_id
WHERE n.related_form_id = ? AND d.user_id IN (?)
GROUP BY d.user_id`
	q, params, err := inQuery(query, formID, userIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		UserID int       `db:"user_id"`
		LastAt time.Time `db:"last_at"`
	}
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return nil, errors.Wrap(err, "querying last deliveries")
	}
	last := make(map[int]time.Time, len(rows))
	for _, r := range rows {
		last[r.UserID] = r.LastAt
	}
	return last, nil
}
