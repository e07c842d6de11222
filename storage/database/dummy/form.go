package dummydb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core/form"
)

type formRepository struct {
	db     *formTable
	groups *groupTable
	users  *userTable
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *DB) *formRepository {
	return &formRepository{db: db.form, groups: db.group, users: db.user}
}

func (repo *formRepository) CreateForm(ctx context.Context, frm form.Form, viewers, assigners []int) (form.Form, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	frm.ID = repo.db.pkCount
	repo.db.table[frm.ID] = &frm

	repo.db.viewers[frm.ID] = make(map[int]struct{}, len(viewers))
	for _, id := range viewers {
		repo.db.viewers[frm.ID][id] = struct{}{}
	}
	repo.db.assigners[frm.ID] = make(map[int]struct{}, len(assigners))
	for _, id := range assigners {
		repo.db.assigners[frm.ID][id] = struct{}{}
	}
	return frm, nil
}

func (repo *formRepository) GetFormByID(ctx context.Context, id int) (form.Form, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if frm, ok := repo.db.table[id]; ok {
		return *frm, nil
	}
	return form.Form{}, form.ErrNotFound
}

func (repo *formRepository) QueryFormsByActor(ctx context.Context, actorID int) ([]form.Form, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	forms := make([]form.Form, 0)
	for id, frm := range repo.db.table {
		_, isViewer := repo.db.viewers[id][actorID]
		_, isAssigner := repo.db.assigners[id][actorID]
		if frm.CreatedBy == actorID || isViewer || isAssigner {
			forms = append(forms, *frm)
		}
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].CreatedAt.After(forms[j].CreatedAt) })
	return forms, nil
}

func (repo *formRepository) UpdateFormFields(ctx context.Context, formID int, fields []form.Field) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	frm, ok := repo.db.table[formID]
	if !ok {
		return form.ErrNotFound
	}
	frm.Fields = fields
	return nil
}

func (repo *formRepository) DeleteForm(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return form.ErrNotFound
	}
	delete(repo.db.table, id)
	delete(repo.db.viewers, id)
	delete(repo.db.assigners, id)
	for aid, asg := range repo.db.assignments {
		if asg.FormID == id {
			delete(repo.db.assignments, aid)
		}
	}
	for sid, sub := range repo.db.submissions {
		if sub.FormID == id {
			delete(repo.db.submissions, sid)
		}
	}
	return nil
}

func (repo *formRepository) CreateAssignments(ctx context.Context, asgs []form.Assignment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, asg := range asgs {
		repo.db.asgPkCount++
		asg.ID = repo.db.asgPkCount
		a := asg
		repo.db.assignments[asg.ID] = &a
	}
	return nil
}

func (repo *formRepository) GetAssignmentsByForm(ctx context.Context, formID int) ([]form.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	asgs := make([]form.Assignment, 0)
	for _, asg := range repo.db.assignments {
		if asg.FormID == formID {
			asgs = append(asgs, *asg)
		}
	}
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].ID < asgs[j].ID })
	return asgs, nil
}

func (repo *formRepository) QueryAssignedForms(ctx context.Context, userID int, groupIDs []int) ([]form.AssignedForm, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	inGroups := make(map[int]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		inGroups[id] = struct{}{}
	}

	asgs := make([]*form.Assignment, 0)
	for _, asg := range repo.db.assignments {
		if asg.UserID.Valid && int(asg.UserID.Int) == userID {
			asgs = append(asgs, asg)
			continue
		}
		if asg.GroupID.Valid {
			if _, ok := inGroups[int(asg.GroupID.Int)]; ok {
				asgs = append(asgs, asg)
			}
		}
	}
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].CreatedAt.After(asgs[j].CreatedAt) })

	forms := make([]form.AssignedForm, 0, len(asgs))
	for _, asg := range asgs {
		frm, ok := repo.db.table[asg.FormID]
		if !ok || !frm.IsActive {
			continue
		}
		af := form.AssignedForm{
			FormID:      frm.ID,
			Title:       frm.Title,
			Description: frm.Description,
			DueDate:     asg.DueDate,
		}
		if sender, ok := repo.users.table[asg.AssignedBy]; ok {
			af.SenderName = sender.FullName
			af.SenderEmail = sender.Email
		}
		for _, sub := range repo.db.submissions {
			if sub.FormID == frm.ID && sub.UserID == userID {
				af.Submitted = true
				af.SubmittedAt = null.TimeFrom(sub.SubmittedAt)
				break
			}
		}
		forms = append(forms, af)
	}
	return forms, nil
}

func (repo *formRepository) GetAssignedGroups(ctx context.Context, formID int) ([]form.AssignedGroup, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.groups.RLock()
	defer repo.groups.RUnlock()

	seen := make(map[int]struct{})
	groups := make([]form.AssignedGroup, 0)
	for _, asg := range repo.db.assignments {
		if asg.FormID != formID || !asg.GroupID.Valid {
			continue
		}
		gid := int(asg.GroupID.Int)
		if _, ok := seen[gid]; ok {
			continue
		}
		seen[gid] = struct{}{}
		if grp, ok := repo.groups.table[gid]; ok {
			groups = append(groups, form.AssignedGroup{ID: grp.ID, Name: grp.Name})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (repo *formRepository) UpsertSubmission(ctx context.Context, sub form.Submission) (form.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, s := range repo.db.submissions {
		if s.FormID == sub.FormID && s.UserID == sub.UserID {
			sub.ID = id
			repo.db.submissions[id] = &sub
			return sub, nil
		}
	}
	repo.db.subPkCount++
	sub.ID = repo.db.subPkCount
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *formRepository) GetSubmission(ctx context.Context, formID, userID int) (form.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.FormID == formID && sub.UserID == userID {
			return *sub, nil
		}
	}
	return form.Submission{}, form.ErrSubmissionNotFound
}

func (repo *formRepository) DeleteSubmission(ctx context.Context, formID, userID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, sub := range repo.db.submissions {
		if sub.FormID == formID && sub.UserID == userID {
			delete(repo.db.submissions, id)
			return nil
		}
	}
	return form.ErrSubmissionNotFound
}

func (repo *formRepository) QuerySubmissionsByForm(ctx context.Context, formID int) ([]form.SubmissionDetail, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	subs := make([]form.SubmissionDetail, 0)
	for _, sub := range repo.db.submissions {
		if sub.FormID != formID {
			continue
		}
		detail := form.SubmissionDetail{Submission: *sub}
		if usr, ok := repo.users.table[sub.UserID]; ok {
			detail.FullName = usr.FullName
			detail.Email = usr.Email
			detail.RegNo = usr.RegNo
		}
		subs = append(subs, detail)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo *formRepository) GetSubmittedUserIDs(ctx context.Context, formID int) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[int]struct{})
	ids := make([]int, 0)
	for _, sub := range repo.db.submissions {
		if sub.FormID != formID {
			continue
		}
		if _, ok := seen[sub.UserID]; ok {
			continue
		}
		seen[sub.UserID] = struct{}{}
		ids = append(ids, sub.UserID)
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *formRepository) GetSubmissionsByUser(ctx context.Context, userID int) ([]form.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]form.Submission, 0)
	for _, sub := range repo.db.submissions {
		if sub.UserID == userID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo *formRepository) GetGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	repo.groups.RLock()
	defer repo.groups.RUnlock()

	ids := make([]int, 0)
	for gid, members := range repo.groups.members {
		if _, ok := members[userID]; ok {
			ids = append(ids, gid)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
