package form

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Status classifies the form's resolved audience against the submission ledger
// at query time. Stray submissions from people no longer in the audience are
// tolerated and excluded; pending is clamped at zero and a form with no
// assignments reports all-zero, never a division error.
func (svc *Service) Status(ctx context.Context, formID int) (Status, error) {
	asgs, err := svc.repo.GetAssignmentsByForm(ctx, formID)
	if err != nil {
		return Status{}, errors.Wrap(err, "reading assignments")
	}
	if len(asgs) == 0 {
		return Status{}, nil
	}
	reach, err := svc.reachFrom(ctx, asgs)
	if err != nil {
		return Status{}, err
	}

	submittedIDs, err := svc.repo.GetSubmittedUserIDs(ctx, formID)
	if err != nil {
		return Status{}, errors.Wrap(err, "reading submissions")
	}
	submitted := make(map[int]struct{}, len(submittedIDs))
	for _, id := range submittedIDs {
		submitted[id] = struct{}{}
	}

	// the nearest due date comes from the assignment rows themselves, so an
	// assignment to a currently empty group still carries its due date
	var nearest time.Time
	for _, a := range asgs {
		if a.DueDate.Valid && (nearest.IsZero() || a.DueDate.Time.Before(nearest)) {
			nearest = a.DueDate.Time
		}
	}

	now := nowFunc().UTC()
	st := Status{TotalAssigned: len(reach)}
	for uid, due := range reach {
		if _, ok := submitted[uid]; ok {
			st.Submitted++
		} else if !due.IsZero() && due.Before(now) {
			st.Overdue++
		}
	}
	st.Pending = st.TotalAssigned - st.Submitted
	if st.Pending < 0 {
		st.Pending = 0
	}
	if !nearest.IsZero() {
		st.NearestDueDate = null.TimeFrom(nearest)
		st.IsOverdue = nearest.Before(now) && st.Pending > 0
	}
	return st, nil
}

// RecipientStatuses returns the per-person classification for every resolved
// recipient of the form.
func (svc *Service) RecipientStatuses(ctx context.Context, formID int) ([]RecipientStatus, error) {
	reach, err := svc.resolveReach(ctx, formID)
	if err != nil {
		return nil, err
	}
	if len(reach) == 0 {
		return []RecipientStatus{}, nil
	}

	ids := make([]int, 0, len(reach))
	for id := range reach {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "reading recipients")
	}
	subs, err := svc.repo.GetSubmittedUserIDs(ctx, formID)
	if err != nil {
		return nil, errors.Wrap(err, "reading submissions")
	}
	submitted := make(map[int]struct{}, len(subs))
	for _, id := range subs {
		submitted[id] = struct{}{}
	}

	now := nowFunc().UTC()
	out := make([]RecipientStatus, 0, len(users))
	for _, u := range users {
		rs := RecipientStatus{
			UserID:   u.ID,
			FullName: u.FullName,
			Email:    u.Email,
			RegNo:    u.RegNo,
			Phone:    u.Mobile,
		}
		if _, ok := submitted[u.ID]; ok {
			rs.Submitted = true
			if sub, err := svc.repo.GetSubmission(ctx, formID, u.ID); err == nil {
				rs.SubmittedAt = null.TimeFrom(sub.SubmittedAt)
			}
		} else if due := reach[u.ID]; !due.IsZero() && due.Before(now) {
			rs.Overdue = true
		}
		out = append(out, rs)
	}
	return out, nil
}

// PendingRecipientIDs returns the resolved recipients who have not submitted,
// the "remind all" audience.
func (svc *Service) PendingRecipientIDs(ctx context.Context, formID int) ([]int, error) {
	reach, err := svc.resolveReach(ctx, formID)
	if err != nil {
		return nil, err
	}
	if len(reach) == 0 {
		return []int{}, nil
	}
	subs, err := svc.repo.GetSubmittedUserIDs(ctx, formID)
	if err != nil {
		return nil, errors.Wrap(err, "reading submissions")
	}
	for _, id := range subs {
		delete(reach, id)
	}
	ids := make([]int, 0, len(reach))
	for id := range reach {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// AssignedForms builds a student's view of the forms reaching them, one row per
// form even when several assignments reach them, with pending/completed/overdue
// counts.
func (svc *Service) AssignedForms(ctx context.Context, userID int) (AssignedForms, error) {
	groupIDs, err := svc.repo.GetGroupIDsForUser(ctx, userID)
	if err != nil {
		return AssignedForms{}, errors.Wrap(err, "reading memberships")
	}
	rows, err := svc.repo.QueryAssignedForms(ctx, userID, groupIDs)
	if err != nil {
		return AssignedForms{}, errors.Wrap(err, "reading assigned forms")
	}
	if len(rows) == 0 {
		return AssignedForms{Forms: []AssignedForm{}}, nil
	}

	subs, err := svc.repo.GetSubmissionsByUser(ctx, userID)
	if err != nil {
		return AssignedForms{}, errors.Wrap(err, "reading submissions")
	}
	submittedAt := make(map[int]time.Time, len(subs))
	for _, s := range subs {
		submittedAt[s.FormID] = s.SubmittedAt
	}

	// dedup by form, keeping the earliest due date seen
	byForm := make(map[int]int) // form id -> index in out
	out := make([]AssignedForm, 0, len(rows))
	for _, row := range rows {
		if idx, ok := byForm[row.FormID]; ok {
			prev := &out[idx]
			if row.DueDate.Valid && (!prev.DueDate.Valid || row.DueDate.Time.Before(prev.DueDate.Time)) {
				prev.DueDate = row.DueDate
			}
			continue
		}
		byForm[row.FormID] = len(out)
		out = append(out, row)
	}

	now := nowFunc().UTC()
	res := AssignedForms{Forms: out}
	for i := range res.Forms {
		f := &res.Forms[i]
		if at, ok := submittedAt[f.FormID]; ok {
			f.Submitted = true
			f.SubmittedAt = null.TimeFrom(at)
			res.Stats.Completed++
		} else if f.DueDate.Valid && f.DueDate.Time.Before(now) {
			res.Stats.Overdue++
		} else {
			res.Stats.Pending++
		}
	}
	return res, nil
}
