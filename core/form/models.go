package form

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core"
)

// Field is one entry of a form's field schema, supplied by the spreadsheet
// ingestion boundary at creation time.
type Field struct {
	ID       string `json:"id" validate:"required"`
	Label    string `json:"label" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Required bool   `json:"required"`
}

type Form struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Fields      []Field   `json:"fields"`
	CreatedBy   int       `json:"created_by"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type NewForm struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields" validate:"required,min=1,dive"`
	Viewers     []int   `json:"viewers"`
	Assigners   []int   `json:"assigners"`
}

func (nf *NewForm) Clean() {
	nf.Title = core.CleanString(nf.Title)
	nf.Description = core.CleanString(nf.Description)
}

// Assignment records that a form is owed by one person or by every current
// member of one group. Rows are never mutated; assigning again adds rows.
type Assignment struct {
	ID         int       `json:"id"`
	FormID     int       `json:"form_id"`
	AssignedBy int       `json:"assigned_by"`
	UserID     null.Int  `json:"assigned_to_user_id"`
	GroupID    null.Int  `json:"assigned_to_group_id"`
	DueDate    null.Time `json:"due_date"`
	// reminder settings, consumed by the notification scheduler
	ReminderIntervalHours null.Int  `json:"reminder_interval_hours"`
	ReminderAt            null.Time `json:"reminder_trigger_time"`
	CreatedAt             time.Time `json:"created_at"` // UTC
}

// NewAssignment is one target of an assign call. Exactly one of UserID/GroupID
// must be set.
type NewAssignment struct {
	UserID                *int       `json:"assigned_to_user_id"`
	GroupID               *int       `json:"assigned_to_group_id"`
	DueDate               *time.Time `json:"due_date"`
	ReminderIntervalHours *int       `json:"reminder_interval_hours"`
	ReminderAt            *time.Time `json:"reminder_trigger_time"`
}

type Submission struct {
	ID          int                    `json:"id"`
	FormID      int                    `json:"form_id"`
	UserID      int                    `json:"user_id"`
	Payload     map[string]interface{} `json:"submission_data"`
	SubmittedAt time.Time              `json:"submitted_at"` // UTC
}

// SubmissionDetail joins a submission with the submitter's profile.
type SubmissionDetail struct {
	Submission
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	RegNo    string `json:"reg_no"`
}

// Status is the per-form rollup over the resolved audience.
type Status struct {
	TotalAssigned  int       `json:"totalAssigned"`
	Submitted      int       `json:"submitted"`
	Pending        int       `json:"pending"`
	Overdue        int       `json:"overdue"`
	NearestDueDate null.Time `json:"nearestDueDate"`
	IsOverdue      bool      `json:"isOverdue"`
}

// RecipientStatus classifies one resolved recipient at query time.
type RecipientStatus struct {
	UserID      int       `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	RegNo       string    `json:"reg_no"`
	Phone       string    `json:"phone"`
	Submitted   bool      `json:"submitted"`
	SubmittedAt null.Time `json:"submitted_at"`
	Overdue     bool      `json:"overdue"`
}

// AssignedForm is one row of a student's assigned-forms view, deduplicated by
// form even when the student is reachable through several assignments.
type AssignedForm struct {
	FormID      int       `json:"form_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     null.Time `json:"due_date"`
	Submitted   bool      `json:"is_submitted"`
	SubmittedAt null.Time `json:"submitted_at"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
}

type AssignedFormsStats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

type AssignedForms struct {
	Forms []AssignedForm     `json:"forms"`
	Stats AssignedFormsStats `json:"stats"`
}

// AssignedGroup is a (id, name) pair of a group a form was assigned to.
type AssignedGroup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
