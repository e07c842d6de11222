package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core/notification"
)

type notificationRepository struct {
	db    *notificationTable
	forms *formTable
	users *userTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notification, forms: db.form, users: db.user}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	n.ID = repo.db.pkCount
	repo.db.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) GetNotificationByID(ctx context.Context, id int) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryByCreator(ctx context.Context, creatorID int) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.CreatedBy == creatorID {
			ns = append(ns, *n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
	return ns, nil
}

func (repo *notificationRepository) QueryInbox(ctx context.Context, userID int) ([]notification.InboxItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	items := make([]notification.InboxItem, 0)
	for _, rec := range repo.db.deliveries {
		if rec.UserID != userID {
			continue
		}
		n, ok := repo.db.table[rec.NotificationID]
		if !ok {
			continue
		}
		item := notification.InboxItem{
			Notification: *n,
			IsRead:       rec.IsRead,
			ReadAt:       rec.ReadAt,
		}
		if sender, ok := repo.users.table[n.CreatedBy]; ok {
			item.SenderName = sender.FullName
			item.SenderEmail = sender.Email
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (repo *notificationRepository) MarkSent(ctx context.Context, id int, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.SentAt.SetValid(at)
	return nil
}

func (repo *notificationRepository) DueNotifications(ctx context.Context, now time.Time) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.ScheduledAt.Valid && !n.ScheduledAt.Time.After(now) && !n.SentAt.Valid {
			ns = append(ns, *n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].ScheduledAt.Time.Before(ns[j].ScheduledAt.Time) })
	return ns, nil
}

func (repo *notificationRepository) CreateDeliveryRecords(ctx context.Context, recs []notification.DeliveryRecord) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, rec := range recs {
		repo.db.recPkCount++
		rec.ID = repo.db.recPkCount
		r := rec
		repo.db.deliveries[rec.ID] = &r
	}
	return nil
}

func (repo *notificationRepository) GetDeliveryDetails(ctx context.Context, notificationID int) ([]notification.DeliveryDetail, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	details := make([]notification.DeliveryDetail, 0)
	for _, rec := range repo.db.deliveries {
		if rec.NotificationID != notificationID {
			continue
		}
		detail := notification.DeliveryDetail{DeliveryRecord: *rec}
		if usr, ok := repo.users.table[rec.UserID]; ok {
			detail.FullName = usr.FullName
			detail.RegNo = usr.RegNo
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].FullName < details[j].FullName })
	return details, nil
}

func (repo *notificationRepository) MarkDeliveryRead(ctx context.Context, notificationID, userID int, at time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, rec := range repo.db.deliveries {
		if rec.NotificationID != notificationID || rec.UserID != userID {
			continue
		}
		if rec.IsRead {
			return false, nil
		}
		rec.IsRead = true
		rec.ReadAt.SetValid(at)
		return true, nil
	}
	return false, notification.ErrDeliveryNotFound
}

func (repo *notificationRepository) RecipientCounts(ctx context.Context, userID int) (int, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var total, read int
	for _, rec := range repo.db.deliveries {
		if rec.UserID != userID {
			continue
		}
		total++
		if rec.IsRead {
			read++
		}
	}
	return total, read, nil
}

func (repo *notificationRepository) CreatorCounts(ctx context.Context, creatorID int) (int, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var total, read int
	for _, rec := range repo.db.deliveries {
		n, ok := repo.db.table[rec.NotificationID]
		if !ok || n.CreatedBy != creatorID {
			continue
		}
		total++
		if rec.IsRead {
			read++
		}
	}
	return total, read, nil
}

func (repo *notificationRepository) CampaignHistory(ctx context.Context) ([]notification.CampaignSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.forms.RLock()
	defer repo.forms.RUnlock()

	type key struct {
		formID int
		title  string
	}
	type agg struct {
		formID    int
		hasForm   bool
		title     string
		total     int
		read      int
		createdAt time.Time
	}
	groups := make(map[key]*agg)
	for _, rec := range repo.db.deliveries {
		n, ok := repo.db.table[rec.NotificationID]
		if !ok {
			continue
		}
		k := key{title: n.Title}
		if n.RelatedFormID.Valid {
			k.formID = int(n.RelatedFormID.Int)
		}
		a, ok := groups[k]
		if !ok {
			a = &agg{formID: k.formID, hasForm: n.RelatedFormID.Valid, title: n.Title}
			groups[k] = a
		}
		a.total++
		if rec.IsRead {
			a.read++
		}
		if n.CreatedAt.After(a.createdAt) {
			a.createdAt = n.CreatedAt
		}
	}

	history := make([]notification.CampaignSummary, 0, len(groups))
	for _, a := range groups {
		var formID null.Int
		var formTitle string
		if a.hasForm {
			formID = null.IntFrom(a.formID)
			if frm, ok := repo.forms.table[a.formID]; ok {
				formTitle = frm.Title
			}
		}
		history = append(history, notification.NewCampaignSummary(
			formID, formTitle, a.title, a.total, a.read, a.createdAt,
		))
	}
	sort.Slice(history, func(i, j int) bool { return history[i].CreatedAt.After(history[j].CreatedAt) })
	return history, nil
}

func (repo *notificationRepository) ChannelStats(ctx context.Context, formID int) ([]notification.ChannelCount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[string]int)
	for _, n := range repo.db.table {
		if !n.RelatedFormID.Valid || int(n.RelatedFormID.Int) != formID {
			continue
		}
		for _, ch := range n.Channels {
			counts[ch]++
		}
	}
	stats := make([]notification.ChannelCount, 0, len(counts))
	for ch, count := range counts {
		stats = append(stats, notification.ChannelCount{Channel: ch, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Channel < stats[j].Channel
	})
	return stats, nil
}

func (repo *notificationRepository) LastDeliveries(ctx context.Context, formID int, userIDs []int) (map[int]time.Time, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[int]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	last := make(map[int]time.Time)
	for _, rec := range repo.db.deliveries {
		if _, ok := wanted[rec.UserID]; !ok {
			continue
		}
		n, ok := repo.db.table[rec.NotificationID]
		if !ok || !n.RelatedFormID.Valid || int(n.RelatedFormID.Int) != formID {
			continue
		}
		if at, ok := last[rec.UserID]; !ok || rec.CreatedAt.After(at) {
			last[rec.UserID] = rec.CreatedAt
		}
	}
	return last, nil
}
