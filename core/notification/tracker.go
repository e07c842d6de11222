package notification

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/user"
)

// MarkRead records the recipient's read receipt. Only the first call wins:
// read_at is set once and never moves, and concurrent duplicate calls are safe
// because the repository performs a conditional update rather than
// read-then-write. A campaign that never reached the user cannot be read:
// ErrDeliveryNotFound.
func (svc *Service) MarkRead(ctx context.Context, notificationID, userID int) error {
	if _, err := svc.repo.GetNotificationByID(ctx, notificationID); err != nil {
		return err
	}
	if _, err := svc.repo.MarkDeliveryRead(ctx, notificationID, userID, nowFunc().UTC()); err != nil {
		if errors.Cause(err) == ErrDeliveryNotFound {
			return err
		}
		return errors.Wrap(err, "marking read")
	}
	return nil
}

// Details is the campaign drill-down: every recipient with read state, split
// into read/unread, with the read rate. A campaign that reached nobody reports
// zero, not a division error.
func (svc *Service) Details(ctx context.Context, notificationID int) (Details, error) {
	if _, err := svc.repo.GetNotificationByID(ctx, notificationID); err != nil {
		return Details{}, err
	}
	recs, err := svc.repo.GetDeliveryDetails(ctx, notificationID)
	if err != nil {
		return Details{}, errors.Wrap(err, "reading delivery records")
	}

	det := Details{
		Total:            len(recs),
		AllRecipients:    recs,
		ReadRecipients:   make([]DeliveryDetail, 0, len(recs)),
		UnreadRecipients: make([]DeliveryDetail, 0, len(recs)),
	}
	for _, r := range recs {
		if r.IsRead {
			det.ReadRecipients = append(det.ReadRecipients, r)
		} else {
			det.UnreadRecipients = append(det.UnreadRecipients, r)
		}
	}
	det.Read = len(det.ReadRecipients)
	det.Unread = len(det.UnreadRecipients)
	det.SuccessRate = successRate(det.Read, det.Total)
	return det, nil
}

// Summary aggregates delivery records scoped to the actor: campaigns they
// received for students, campaigns they sent for teachers/admins.
func (svc *Service) Summary(ctx context.Context, actor user.User) (Summary, error) {
	var total, read int
	var err error
	if actor.IsStudent() {
		total, read, err = svc.repo.RecipientCounts(ctx, actor.ID)
	} else {
		total, read, err = svc.repo.CreatorCounts(ctx, actor.ID)
	}
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting deliveries")
	}
	return Summary{
		Total:       total,
		Read:        read,
		Unread:      total - read,
		SuccessRate: successRate(read, total),
	}, nil
}

// CampaignHistory lists past reminder campaigns, one row per (related form,
// title) pair, newest first, always derived from the delivery ledger.
func (svc *Service) CampaignHistory(ctx context.Context) ([]CampaignSummary, error) {
	return svc.repo.CampaignHistory(ctx)
}

// ChannelStats counts delivery attempts per channel for one form's campaigns.
func (svc *Service) ChannelStats(ctx context.Context, formID int) ([]ChannelCount, error) {
	return svc.repo.ChannelStats(ctx, formID)
}
