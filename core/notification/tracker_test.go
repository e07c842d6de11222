package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/notification"
	"github.com/aceportal/formflow/core/user"
)

func sendTo(t *testing.T, env testEnv, actor user.User, formID *int, userIDs ...int) notification.Notification {
	t.Helper()
	res, err := env.notifSvc.Send(context.Background(), notification.NewNotification{
		Title:         "Form Reminder",
		Message:       "Please complete your assigned form",
		Channels:      []string{notification.ChannelEmail},
		UserIDs:       userIDs,
		RelatedFormID: formID,
	}, actor)
	if err != nil {
		t.Fatalf("sendTo() failed: %v", err)
	}
	return res.Notification
}

func TestService_MarkRead_firstCallWins(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	teacher := createUser(t, env.usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, env.usrSvc, "p1", user.RoleStudent)
	n := sendTo(t, env, teacher, nil, p1.ID)

	if err := env.notifSvc.MarkRead(ctx, n.ID, p1.ID); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}
	det, err := env.notifSvc.Details(ctx, n.ID)
	if err != nil {
		t.Fatalf("Details() failed: %v", err)
	}
	if det.Read != 1 || !det.AllRecipients[0].ReadAt.Valid {
		t.Fatalf("Details = %+v; want one read record with ReadAt set", det)
	}
	readAt := det.AllRecipients[0].ReadAt.Time

	// the receipt timestamp never moves
	time.Sleep(10 * time.Millisecond)
	if err = env.notifSvc.MarkRead(ctx, n.ID, p1.ID); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}
	det, err = env.notifSvc.Details(ctx, n.ID)
	if err != nil {
		t.Fatalf("Details() failed: %v", err)
	}
	if det.Read != 1 || !det.AllRecipients[0].ReadAt.Time.Equal(readAt) {
		t.Errorf("ReadAt = %v; want unchanged %v", det.AllRecipients[0].ReadAt.Time, readAt)
	}

	if err = env.notifSvc.MarkRead(ctx, 987, p1.ID); errors.Cause(err) != notification.ErrNotFound {
		t.Errorf("MarkRead() on unknown campaign error = %v; want %v", err, notification.ErrNotFound)
	}

	// a campaign that never reached the user cannot be read
	p2 := createUser(t, env.usrSvc, "p2", user.RoleStudent)
	if err = env.notifSvc.MarkRead(ctx, n.ID, p2.ID); errors.Cause(err) != notification.ErrDeliveryNotFound {
		t.Errorf("MarkRead() by a non-recipient error = %v; want %v", err, notification.ErrDeliveryNotFound)
	}
}

func TestService_Details(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	teacher := createUser(t, env.usrSvc, "teach", user.RoleTeacher)
	amy := createUser(t, env.usrSvc, "amy", user.RoleStudent)
	ben := createUser(t, env.usrSvc, "ben", user.RoleStudent)
	cal := createUser(t, env.usrSvc, "cal", user.RoleStudent)
	n := sendTo(t, env, teacher, nil, amy.ID, ben.ID, cal.ID)

	if err := env.notifSvc.MarkRead(ctx, n.ID, ben.ID); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}

	det, err := env.notifSvc.Details(ctx, n.ID)
	if err != nil {
		t.Fatalf("Details() failed: %v", err)
	}
	if det.Total != 3 || det.Read != 1 || det.Unread != 2 {
		t.Errorf("Details = %+v; want 3/1/2", det)
	}
	if det.SuccessRate != 33 {
		t.Errorf("SuccessRate = %d; want 33", det.SuccessRate)
	}
	if len(det.ReadRecipients) != 1 || det.ReadRecipients[0].FullName != "ben" {
		t.Errorf("ReadRecipients = %+v; want [ben]", det.ReadRecipients)
	}
	if len(det.UnreadRecipients) != 2 {
		t.Errorf("UnreadRecipients = %+v; want [amy cal]", det.UnreadRecipients)
	}
	// recipients come back sorted by name
	if det.AllRecipients[0].FullName != "amy" || det.AllRecipients[2].FullName != "cal" {
		t.Errorf("AllRecipients order = %+v; want amy..cal", det.AllRecipients)
	}
}

func TestService_Summary_scopedToActor(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	teacher := createUser(t, env.usrSvc, "teach", user.RoleTeacher)
	other := createUser(t, env.usrSvc, "other", user.RoleTeacher)
	p1 := createUser(t, env.usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, env.usrSvc, "p2", user.RoleStudent)

	n1 := sendTo(t, env, teacher, nil, p1.ID, p2.ID)
	sendTo(t, env, other, nil, p1.ID)

	if err := env.notifSvc.MarkRead(ctx, n1.ID, p1.ID); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}

	// a student counts what they received
	sum, err := env.notifSvc.Summary(ctx, p1)
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if sum.Total != 2 || sum.Read != 1 || sum.Unread != 1 || sum.SuccessRate != 50 {
		t.Errorf("student summary = %+v; want 2/1/1 at 50%%", sum)
	}

	// a teacher counts what they sent, not what colleagues sent
	sum, err = env.notifSvc.Summary(ctx, teacher)
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if sum.Total != 2 || sum.Read != 1 {
		t.Errorf("creator summary = %+v; want 2 deliveries, 1 read", sum)
	}

	// no deliveries yet reports zero, not a division error
	fresh := createUser(t, env.usrSvc, "fresh", user.RoleStudent)
	if sum, err = env.notifSvc.Summary(ctx, fresh); err != nil || sum.SuccessRate != 0 {
		t.Errorf("empty summary = %+v, %v; want all-zero", sum, err)
	}
}

func TestService_CampaignHistory(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// no campaigns yet: an empty list, not an error
	hist, err := env.notifSvc.CampaignHistory(ctx)
	if err != nil {
		t.Fatalf("CampaignHistory() failed: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("CampaignHistory() = %+v; want empty", hist)
	}

	teacher := createUser(t, env.usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, env.usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, env.usrSvc, "p2", user.RoleStudent)
	frm := createAssignedForm(t, env, teacher, p1, p2)

	// two waves of the same reminder collapse into one history row
	sendTo(t, env, teacher, &frm.ID, p1.ID, p2.ID)
	n2 := sendTo(t, env, teacher, &frm.ID, p2.ID)
	if err = env.notifSvc.MarkRead(ctx, n2.ID, p2.ID); err != nil {
		t.Fatalf("MarkRead() failed: %v", err)
	}

	hist, err = env.notifSvc.CampaignHistory(ctx)
	if err != nil {
		t.Fatalf("CampaignHistory() failed: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d; want 1", len(hist))
	}
	row := hist[0]
	if row.FormTitle != frm.Title || row.Title != "Form Reminder" {
		t.Errorf("row = %+v; want the reminder grouped under %q", row, frm.Title)
	}
	if row.TotalRecipients != 3 || row.ReadCount != 1 || row.UnreadCount != 2 {
		t.Errorf("row = %+v; want 3 deliveries, 1 read", row)
	}
	if row.SuccessRate != 33 {
		t.Errorf("SuccessRate = %d; want 33", row.SuccessRate)
	}
}

func TestService_ChannelStats(t *testing.T) {
	env := setup(t, downChannel{name: notification.ChannelWhatsApp})
	ctx := context.Background()

	teacher := createUser(t, env.usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, env.usrSvc, "p1", user.RoleStudent)
	frm := createAssignedForm(t, env, teacher, p1)

	send := func(channels ...string) {
		t.Helper()
		_, err := env.notifSvc.Send(ctx, notification.NewNotification{
			Title:         "Form Reminder",
			Message:       "Please complete your assigned form",
			Channels:      channels,
			UserIDs:       []int{p1.ID},
			RelatedFormID: &frm.ID,
		}, teacher)
		if err != nil {
			t.Fatalf("Send() failed: %v", err)
		}
	}
	send(notification.ChannelEmail, notification.ChannelWhatsApp)
	send(notification.ChannelEmail)

	stats, err := env.notifSvc.ChannelStats(ctx, frm.ID)
	if err != nil {
		t.Fatalf("ChannelStats() failed: %v", err)
	}
	want := []notification.ChannelCount{
		{Channel: notification.ChannelEmail, Count: 2},
		{Channel: notification.ChannelWhatsApp, Count: 1},
	}
	if len(stats) != 2 || stats[0] != want[0] || stats[1] != want[1] {
		t.Errorf("ChannelStats() = %+v; want %+v", stats, want)
	}
}
