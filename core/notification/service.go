package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/form"
	"github.com/aceportal/formflow/core/user"
)

var (
	ErrNotFound         = errors.New("notification not found")
	ErrDeliveryNotFound = errors.New("delivery record not found")

	errNoRecipients   = "no recipients selected"
	errUnknownChannel = "unknown channel"
	errScheduleNoForm = "a scheduled campaign must relate to a form"

	// ErrNothingToRemind is returned by RemindPending when every resolved
	// recipient has already submitted.
	ErrNothingToRemind = core.NewValidationError(errors.New("no pending recipients"))

	// nowFunc is mockable for tests.
	nowFunc = time.Now
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotificationByID(ctx context.Context, id int) (Notification, error)
		// QueryByCreator returns campaigns created by the actor, newest first.
		QueryByCreator(ctx context.Context, creatorID int) ([]Notification, error)
		// QueryInbox returns campaigns delivered to the user, newest first.
		QueryInbox(ctx context.Context, userID int) ([]InboxItem, error)
		MarkSent(ctx context.Context, id int, at time.Time) error
		// DueNotifications returns scheduled, not-yet-sent campaigns whose
		// trigger time has passed. Pure query; the clock lives with the caller.
		DueNotifications(ctx context.Context, now time.Time) ([]Notification, error)

		// CreateDeliveryRecords persists one record per recipient; records are
		// only handed over once every channel outcome for that recipient is
		// known.
		CreateDeliveryRecords(ctx context.Context, recs []DeliveryRecord) error
		GetDeliveryDetails(ctx context.Context, notificationID int) ([]DeliveryDetail, error)
		// MarkDeliveryRead flips is_read only when currently unread (a
		// conditional update, safe under concurrent duplicate calls) and
		// reports whether this call did the flip. ErrDeliveryNotFound when
		// the campaign never reached the user.
		MarkDeliveryRead(ctx context.Context, notificationID, userID int, at time.Time) (bool, error)
		RecipientCounts(ctx context.Context, userID int) (total, read int, err error)
		CreatorCounts(ctx context.Context, creatorID int) (total, read int, err error)
		// CampaignHistory groups delivery records by (related form, title),
		// newest first.
		CampaignHistory(ctx context.Context) ([]CampaignSummary, error)
		ChannelStats(ctx context.Context, formID int) ([]ChannelCount, error)
		// LastDeliveries returns, per given user, the most recent delivery
		// time of any campaign related to the form.
		LastDeliveries(ctx context.Context, formID int, userIDs []int) (map[int]time.Time, error)
	}

	Service struct {
		repo     Repository
		formSvc  *form.Service
		usrSvc   *user.Service
		logger   core.Logger
		conf     *core.Config
		channels map[string]Channel
	}
)

func NewService(
	repo Repository,
	formSvc *form.Service,
	usrSvc *user.Service,
	logger core.Logger,
	conf *core.Config,
	channels ...Channel,
) *Service {
	chans := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		chans[ch.Name()] = ch
	}
	return &Service{
		repo:     repo,
		formSvc:  formSvc,
		usrSvc:   usrSvc,
		logger:   logger,
		conf:     conf,
		channels: chans,
	}
}

func (svc *Service) validateChannels(names []string) error {
	for _, name := range names {
		if _, ok := svc.channels[name]; !ok {
			return core.NewValidationError(nil, core.FieldError{
				Field: "channels",
				Error: fmt.Sprintf("%s: %q", errUnknownChannel, name),
			})
		}
	}
	return nil
}

// Send creates an ad hoc campaign for an explicit recipient list and fans it
// out immediately. If ScheduledAt is set the campaign is instead
// persisted for the scheduler and its audience resolved fresh at trigger time.
func (svc *Service) Send(ctx context.Context, nn NewNotification, actor user.User) (DispatchResult, error) {
	if err := svc.validateChannels(nn.Channels); err != nil {
		return DispatchResult{}, err
	}

	if nn.ScheduledAt != nil {
		if nn.RelatedFormID == nil {
			return DispatchResult{}, core.NewValidationError(nil, core.FieldError{Field: "scheduled_at", Error: errScheduleNoForm})
		}
		if _, err := svc.formSvc.GetByID(ctx, *nn.RelatedFormID); err != nil {
			return DispatchResult{}, err
		}
		n, err := svc.create(ctx, nn, actor.ID)
		if err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{Notification: n}, nil
	}

	if len(nn.UserIDs) == 0 {
		return DispatchResult{}, core.NewValidationError(nil, core.FieldError{Field: "user_ids", Error: errNoRecipients})
	}
	if nn.RelatedFormID != nil {
		if _, err := svc.formSvc.GetByID(ctx, *nn.RelatedFormID); err != nil {
			return DispatchResult{}, err
		}
	}

	n, err := svc.create(ctx, nn, actor.ID)
	if err != nil {
		return DispatchResult{}, err
	}
	// a duplicated id must not produce a second send or delivery record
	return svc.dispatch(ctx, n, dedupIDs(nn.UserIDs), actor)
}

func dedupIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RemindPending targets the form's still-pending audience ("remind all").
// Recipients already reminded for this form within the configured minimum
// interval are skipped, so a rapid second invocation does not double-send.
func (svc *Service) RemindPending(ctx context.Context, formID int, channels []string, actor user.User) (DispatchResult, error) {
	if err := svc.validateChannels(channels); err != nil {
		return DispatchResult{}, err
	}
	frm, err := svc.formSvc.GetByID(ctx, formID)
	if err != nil {
		return DispatchResult{}, err
	}

	pending, err := svc.formSvc.PendingRecipientIDs(ctx, formID)
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, "resolving pending recipients")
	}
	if len(pending) == 0 {
		return DispatchResult{}, ErrNothingToRemind
	}

	last, err := svc.repo.LastDeliveries(ctx, formID, pending)
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, "checking recent reminders")
	}
	now := nowFunc().UTC()
	targets := make([]int, 0, len(pending))
	var skipped []int
	for _, uid := range pending {
		if at, ok := last[uid]; ok && now.Sub(at) < svc.conf.Channels.ReminderMinInterval {
			skipped = append(skipped, uid)
			continue
		}
		targets = append(targets, uid)
	}
	if len(targets) == 0 {
		return DispatchResult{SkippedIDs: skipped}, nil
	}

	n, err := svc.create(ctx, NewNotification{
		Title:         "Form Reminder",
		Message:       fmt.Sprintf("Please complete your assigned form: %s", frm.Title),
		Channels:      channels,
		RelatedFormID: &formID,
	}, actor.ID)
	if err != nil {
		return DispatchResult{}, err
	}

	res, err := svc.dispatch(ctx, n, targets, actor)
	res.SkippedIDs = skipped
	return res, err
}

func (svc *Service) create(ctx context.Context, nn NewNotification, actorID int) (Notification, error) {
	n := Notification{
		CampaignKey:   uuid.New(),
		Title:         core.CleanString(nn.Title),
		Message:       nn.Message,
		Channels:      nn.Channels,
		RelatedFormID: null.IntFromPtr(nn.RelatedFormID),
		CreatedBy:     actorID,
		ScheduledAt:   null.TimeFromPtr(nn.ScheduledAt),
		CreatedAt:     nowFunc().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

// dispatch fans the campaign out to every recipient across every requested
// channel. Recipients are processed in parallel and independently: a failing
// or hanging channel attempt for one recipient never aborts the others, and
// every processed recipient gets exactly one delivery record once all channel
// outcomes for them are known.
func (svc *Service) dispatch(ctx context.Context, n Notification, userIDs []int, actor user.User) (DispatchResult, error) {
	recipients, err := svc.usrSvc.GetByIDs(ctx, userIDs...)
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, "loading recipients")
	}

	msg := Message{
		Title:       n.Title,
		Body:        n.Message,
		SenderName:  actor.FullName,
		SenderEmail: actor.Email,
	}
	if n.RelatedFormID.Valid {
		if frm, err := svc.formSvc.GetByID(ctx, int(n.RelatedFormID.Int)); err == nil {
			msg.FormTitle = frm.Title
			msg.FormLink = fmt.Sprintf("%s/student/form/%d", svc.conf.FrontendBaseURL, frm.ID)
		}
	}

	outcomes := make([]RecipientOutcome, len(recipients))
	var wg sync.WaitGroup
	for i, rcpt := range recipients {
		wg.Add(1)
		go func(i int, u user.User) {
			defer wg.Done()
			outcomes[i] = svc.sendToRecipient(ctx, n, u, msg)
		}(i, rcpt)
	}
	wg.Wait()

	now := nowFunc().UTC()
	recs := make([]DeliveryRecord, 0, len(outcomes))
	for _, o := range outcomes {
		recs = append(recs, DeliveryRecord{
			NotificationID:  n.ID,
			UserID:          o.UserID,
			Status:          o.Status,
			ChannelOutcomes: o.ChannelErrors,
			CreatedAt:       now,
		})
	}
	if err = svc.repo.CreateDeliveryRecords(ctx, recs); err != nil {
		return DispatchResult{}, errors.Wrap(err, "recording deliveries")
	}
	if err = svc.repo.MarkSent(ctx, n.ID, now); err != nil {
		return DispatchResult{}, errors.Wrap(err, "marking campaign sent")
	}
	n.SentAt = null.TimeFrom(now)
	return DispatchResult{Notification: n, Outcomes: outcomes}, nil
}

// sendToRecipient attempts every requested channel for one recipient. Channel
// failures are captured, never thrown: the recipient counts as "sent" when at
// least one channel went through.
func (svc *Service) sendToRecipient(ctx context.Context, n Notification, u user.User, msg Message) RecipientOutcome {
	rcpt := Recipient{
		ID:    u.ID,
		Name:  u.FullName,
		Email: u.Email,
		Phone: u.Mobile,
		RegNo: u.RegNo,
	}
	out := RecipientOutcome{
		UserID:        u.ID,
		Status:        StatusFailed,
		ChannelErrors: make(map[string]string, len(n.Channels)),
	}
	for _, name := range n.Channels {
		ch := svc.channels[name]
		cctx, cancel := context.WithTimeout(ctx, svc.conf.Channels.SendTimeout)
		err := ch.Send(cctx, rcpt, msg)
		cancel()
		if err != nil {
			out.ChannelErrors[name] = err.Error()
			svc.logger.Warn(
				fmt.Sprintf("channel %s failed for recipient %d (campaign %s)", name, u.ID, n.CampaignKey),
				err,
			)
			continue
		}
		out.ChannelErrors[name] = "ok"
		out.Status = StatusSent
	}
	return out
}

// DispatchDue sends every scheduled campaign whose trigger time has passed,
// targeting the related form's then-pending audience. Called by the scheduler.
func (svc *Service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := svc.repo.DueNotifications(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "querying due campaigns")
	}

	var sent int
	for _, n := range due {
		if !n.RelatedFormID.Valid {
			// unreachable through validation; tolerate old rows
			svc.logger.Warn(fmt.Sprintf("scheduled campaign %d has no related form, skipping", n.ID))
			continue
		}
		actor, err := svc.usrSvc.GetByID(ctx, n.CreatedBy)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("loading creator of campaign %d", n.ID), err)
			continue
		}
		pending, err := svc.formSvc.PendingRecipientIDs(ctx, int(n.RelatedFormID.Int))
		if err != nil {
			svc.logger.Error(fmt.Sprintf("resolving audience of campaign %d", n.ID), err)
			continue
		}
		if len(pending) == 0 {
			if err = svc.repo.MarkSent(ctx, n.ID, now); err != nil {
				svc.logger.Error(fmt.Sprintf("closing empty campaign %d", n.ID), err)
			}
			continue
		}
		if _, err = svc.dispatch(ctx, n, pending, actor); err != nil {
			svc.logger.Error(fmt.Sprintf("dispatching campaign %d", n.ID), err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Notification, error) {
	return svc.repo.GetNotificationByID(ctx, id)
}

func (svc *Service) Sent(ctx context.Context, creatorID int) ([]Notification, error) {
	return svc.repo.QueryByCreator(ctx, creatorID)
}

func (svc *Service) Inbox(ctx context.Context, userID int) ([]InboxItem, error) {
	return svc.repo.QueryInbox(ctx, userID)
}
