package form

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/user"
)

var (
	ErrNotFound           = errors.New("form not found")
	ErrSubmissionNotFound = errors.New("submission not found")

	errNoTarget   = "assignment must target a user or a group"
	errBothTarget = "assignment cannot target both a user and a group"

	// nowFunc is mockable for tests.
	nowFunc = time.Now
)

type (
	Repository interface {
		CreateForm(ctx context.Context, frm Form, viewers, assigners []int) (Form, error)
		GetFormByID(ctx context.Context, id int) (Form, error)
		// QueryFormsByActor returns forms created by the actor or shared with
		// them through a permission row, newest first.
		QueryFormsByActor(ctx context.Context, actorID int) ([]Form, error)
		UpdateFormFields(ctx context.Context, formID int, fields []Field) error
		DeleteForm(ctx context.Context, id int) error

		CreateAssignments(ctx context.Context, asgs []Assignment) error
		GetAssignmentsByForm(ctx context.Context, formID int) ([]Assignment, error)
		// QueryAssignedForms returns one row per assignment reaching the user
		// directly or through any of the given group memberships, with the
		// form title/description and sender joined in.
		QueryAssignedForms(ctx context.Context, userID int, groupIDs []int) ([]AssignedForm, error)
		GetAssignedGroups(ctx context.Context, formID int) ([]AssignedGroup, error)

		// UpsertSubmission replaces any active submission for (form, user):
		// exactly one live row per pair, or none.
		UpsertSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, formID, userID int) (Submission, error)
		DeleteSubmission(ctx context.Context, formID, userID int) error
		QuerySubmissionsByForm(ctx context.Context, formID int) ([]SubmissionDetail, error)
		GetSubmittedUserIDs(ctx context.Context, formID int) ([]int, error)
		GetSubmissionsByUser(ctx context.Context, userID int) ([]Submission, error)
		GetGroupIDsForUser(ctx context.Context, userID int) ([]int, error)
	}

	Service struct {
		repo   Repository
		grpSvc *group.Service
		usrSvc *user.Service
	}
)

func NewService(repo Repository, grpSvc *group.Service, usrSvc *user.Service) *Service {
	return &Service{repo: repo, grpSvc: grpSvc, usrSvc: usrSvc}
}

func (svc *Service) Create(ctx context.Context, nf NewForm, actorID int) (Form, error) {
	nf.Clean()
	frm := Form{
		Title:       nf.Title,
		Description: nf.Description,
		Fields:      nf.Fields,
		CreatedBy:   actorID,
		IsActive:    true,
		CreatedAt:   nowFunc().UTC(),
	}
	return svc.repo.CreateForm(ctx, frm, nf.Viewers, nf.Assigners)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Form, error) {
	return svc.repo.GetFormByID(ctx, id)
}

func (svc *Service) QueryByActor(ctx context.Context, actorID int) ([]Form, error) {
	return svc.repo.QueryFormsByActor(ctx, actorID)
}

// UpdateFields replaces the form's field schema. Already-stored submissions
// keep their original payloads.
func (svc *Service) UpdateFields(ctx context.Context, formID int, fields []Field) error {
	if len(fields) == 0 {
		return core.NewValidationError(errors.New("fields are required"))
	}
	if _, err := svc.repo.GetFormByID(ctx, formID); err != nil {
		return err
	}
	return svc.repo.UpdateFormFields(ctx, formID, fields)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteForm(ctx, id)
}

// Assign validates and records new assignment rows for the form. Existing rows
// are never replaced; assigning again only adds reachability.
func (svc *Service) Assign(ctx context.Context, formID int, targets []NewAssignment, actorID int) error {
	if len(targets) == 0 {
		return core.NewValidationError(errors.New("at least one assignment target is required"))
	}
	if _, err := svc.repo.GetFormByID(ctx, formID); err != nil {
		return err
	}

	now := nowFunc().UTC()
	asgs := make([]Assignment, 0, len(targets))
	for _, t := range targets {
		if t.UserID == nil && t.GroupID == nil {
			return core.NewValidationError(nil, core.FieldError{Field: "assigned_to", Error: errNoTarget})
		}
		if t.UserID != nil && t.GroupID != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "assigned_to", Error: errBothTarget})
		}
		if t.GroupID != nil {
			if _, err := svc.grpSvc.GetByID(ctx, *t.GroupID); err != nil {
				return err
			}
		}
		asgs = append(asgs, Assignment{
			FormID:                formID,
			AssignedBy:            actorID,
			UserID:                null.IntFromPtr(t.UserID),
			GroupID:               null.IntFromPtr(t.GroupID),
			DueDate:               null.TimeFromPtr(t.DueDate),
			ReminderIntervalHours: null.IntFromPtr(t.ReminderIntervalHours),
			ReminderAt:            null.TimeFromPtr(t.ReminderAt),
			CreatedAt:             now,
		})
	}
	return svc.repo.CreateAssignments(ctx, asgs)
}

func (svc *Service) Assignments(ctx context.Context, formID int) ([]Assignment, error) {
	return svc.repo.GetAssignmentsByForm(ctx, formID)
}

func (svc *Service) AssignedGroups(ctx context.Context, formID int) ([]AssignedGroup, error) {
	return svc.repo.GetAssignedGroups(ctx, formID)
}

// Submit creates or replaces the active submission for (form, user).
func (svc *Service) Submit(ctx context.Context, formID, userID int, payload map[string]interface{}) (Submission, error) {
	if _, err := svc.repo.GetFormByID(ctx, formID); err != nil {
		return Submission{}, err
	}
	return svc.repo.UpsertSubmission(ctx, Submission{
		FormID:      formID,
		UserID:      userID,
		Payload:     payload,
		SubmittedAt: nowFunc().UTC(),
	})
}

func (svc *Service) HasSubmitted(ctx context.Context, formID, userID int) (bool, error) {
	if _, err := svc.repo.GetSubmission(ctx, formID, userID); err != nil {
		if errors.Cause(err) == ErrSubmissionNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ClearSubmission reopens the submission slot for (form, user): the reject /
// "resend form" flow. A later Submit leaves exactly one live row again.
func (svc *Service) ClearSubmission(ctx context.Context, formID, userID int) error {
	return svc.repo.DeleteSubmission(ctx, formID, userID)
}

func (svc *Service) Responses(ctx context.Context, formID int) ([]SubmissionDetail, error) {
	if _, err := svc.repo.GetFormByID(ctx, formID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissionsByForm(ctx, formID)
}
