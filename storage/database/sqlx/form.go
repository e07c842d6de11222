package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/aceportal/formflow/core/form"
)

// fieldsJSON maps the form field schema to its JSONB column.
type fieldsJSON []form.Field

func (f fieldsJSON) Value() (driver.Value, error) { return jsonbValue([]form.Field(f)) }
func (f *fieldsJSON) Scan(src interface{}) error  { return jsonbScan(src, f) }

// payloadJSON maps a submission payload to its JSONB column.
type payloadJSON map[string]interface{}

func (p payloadJSON) Value() (driver.Value, error) { return jsonbValue(map[string]interface{}(p)) }
func (p *payloadJSON) Scan(src interface{}) error  { return jsonbScan(src, p) }

type formRow struct {
	ID          int        `db:"id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Fields      fieldsJSON `db:"fields"`
	CreatedBy   int        `db:"created_by"`
	IsActive    bool       `db:"is_active"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r formRow) unpack() form.Form {
	return form.Form{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Fields:      r.Fields,
		CreatedBy:   r.CreatedBy,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

type assignmentRow struct {
	ID                    int       `db:"id"`
	FormID                int       `db:"form_id"`
	AssignedBy            int       `db:"assigned_by"`
	UserID                null.Int  `db:"user_id"`
	GroupID               null.Int  `db:"group_id"`
	DueDate               null.Time `db:"due_date"`
	ReminderIntervalHours null.Int  `db:"reminder_interval_hours"`
	ReminderAt            null.Time `db:"reminder_at"`
	CreatedAt             time.Time `db:"created_at"`
}

func (r assignmentRow) unpack() form.Assignment {
	return form.Assignment{
		ID:                    r.ID,
		FormID:                r.FormID,
		AssignedBy:            r.AssignedBy,
		UserID:                r.UserID,
		GroupID:               r.GroupID,
		DueDate:               r.DueDate,
		ReminderIntervalHours: r.ReminderIntervalHours,
		ReminderAt:            r.ReminderAt,
		CreatedAt:             r.CreatedAt,
	}
}

type formRepository struct {
	db *sqlx.DB
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *sqlx.DB) *formRepository {
	return &formRepository{db: db}
}

func (repo formRepository) CreateForm(ctx context.Context, frm form.Form, viewers, assigners []int) (form.Form, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return form.Form{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO forms (title, description, fields, created_by, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err = tx.QueryRowContext(
		ctx, query,
		frm.Title, frm.Description, fieldsJSON(frm.Fields), frm.CreatedBy, frm.IsActive, frm.CreatedAt,
	).Scan(&frm.ID)
	if err != nil {
		return form.Form{}, errors.Wrap(err, "creating form")
	}

	permQuery := `INSERT INTO form_permissions (form_id, user_id, role) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, userID := range viewers {
		if _, err = tx.ExecContext(ctx, permQuery, frm.ID, userID, "viewer"); err != nil {
			return form.Form{}, errors.Wrap(err, "granting view permission")
		}
	}
	for _, userID := range assigners {
		if _, err = tx.ExecContext(ctx, permQuery, frm.ID, userID, "assigner"); err != nil {
			return form.Form{}, errors.Wrap(err, "granting assign permission")
		}
	}

	if err = tx.Commit(); err != nil {
		return form.Form{}, errors.Wrap(err, "committing transaction")
	}
	return frm, nil
}

func (repo formRepository) GetFormByID(ctx context.Context, id int) (form.Form, error) {
	var row formRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM forms WHERE id = $1`, id); err != nil {
		return form.Form{}, trapNoRowsErr(err, form.ErrNotFound, "finding form by ID")
	}
	return row.unpack(), nil
}

func (repo formRepository) QueryFormsByActor(ctx context.Context, actorID int) ([]form.Form, error) {
	query := `
SELECT DISTINCT f.*
FROM forms f
LEFT JOIN form_permissions p ON p.form_id = f.id
WHERE f.created_by = $1 OR p.user_id = $1
ORDER BY f.created_at DESC`
	var rows []formRow
	if err := repo.db.SelectContext(ctx, &rows, query, actorID); err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	forms := make([]form.Form, 0, len(rows))
	for _, r := range rows {
		forms = append(forms, r.unpack())
	}
	return forms, nil
}

func (repo formRepository) UpdateFormFields(ctx context.Context, formID int, fields []form.Field) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE forms SET fields = $1 WHERE id = $2`, fieldsJSON(fields), formID)
	if err != nil {
		return errors.Wrap(err, "updating form fields")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return form.ErrNotFound
	}
	return nil
}

func (repo formRepository) DeleteForm(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting form")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return form.ErrNotFound
	}
	return nil
}

func (repo formRepository) CreateAssignments(ctx context.Context, asgs []form.Assignment) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO form_assignments (form_id, assigned_by, user_id, group_id, due_date, reminder_interval_hours, reminder_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, asg := range asgs {
		_, err = tx.ExecContext(
			ctx, query,
			asg.FormID, asg.AssignedBy, asg.UserID, asg.GroupID,
			asg.DueDate, asg.ReminderIntervalHours, asg.ReminderAt, asg.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "creating assignment")
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo formRepository) GetAssignmentsByForm(ctx context.Context, formID int) ([]form.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT * FROM form_assignments WHERE form_id = $1 ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, query, formID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]form.Assignment, 0, len(rows))
	for _, r := range rows {
		asgs = append(asgs, r.unpack())
	}
	return asgs, nil
}

func (repo formRepository) QueryAssignedForms(ctx context.Context, userID int, groupIDs []int) ([]form.AssignedForm, error) {
	query := `
SELECT f.id AS form_id, f.title, f.description, a.due_date,
       s.id IS NOT NULL AS submitted, s.submitted_at,
       u.full_name AS sender_name, u.email AS sender_email
FROM form_assignments a
JOIN forms f ON f.id = a.form_id
JOIN users u ON u.id = a.assigned_by
LEFT JOIN form_submissions s ON s.form_id = a.form_id AND s.user_id = ?
WHERE f.is_active AND (a.user_id = ?`
	args := []interface{}{userID, userID}
	if len(groupIDs) > 0 {
		query += ` OR a.group_id IN (?)`
		args = append(args, groupIDs)
	}
	query += `)
ORDER BY a.created_at DESC`

	q, params, err := inQuery(query, args...)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		FormID      int       `db:"form_id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		DueDate     null.Time `db:"due_date"`
		Submitted   bool      `db:"submitted"`
		SubmittedAt null.Time `db:"submitted_at"`
		SenderName  string    `db:"sender_name"`
		SenderEmail string    `db:"sender_email"`
	}
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return nil, errors.Wrap(err, "querying assigned forms")
	}
	forms := make([]form.AssignedForm, 0, len(rows))
	for _, r := range rows {
		forms = append(forms, form.AssignedForm{
			FormID:      r.FormID,
			Title:       r.Title,
			Description: r.Description,
			DueDate:     r.DueDate,
			Submitted:   r.Submitted,
			SubmittedAt: r.SubmittedAt,
			SenderName:  r.SenderName,
			SenderEmail: r.SenderEmail,
		})
	}
	return forms, nil
}

func (repo formRepository) GetAssignedGroups(ctx context.Context, formID int) ([]form.AssignedGroup, error) {
	query := `
SELECT DISTINCT g.id, g.name
FROM form_assignments a
JOIN student_groups g ON g.id = a.group_id
WHERE a.form_id = $1
ORDER BY g.name`
	var groups []form.AssignedGroup
	if err := repo.db.SelectContext(ctx, &groups, query, formID); err != nil {
		return nil, errors.Wrap(err, "querying assigned groups")
	}
	return groups, nil
}

func (repo formRepository) UpsertSubmission(ctx context.Context, sub form.Submission) (form.Submission, error) {
	query := `
INSERT INTO form_submissions (form_id, user_id, payload, submitted_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (form_id, user_id)
DO UPDATE SET payload = EXCLUDED.payload, submitted_at = EXCLUDED.submitted_at
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query, sub.FormID, sub.UserID, payloadJSON(sub.Payload), sub.SubmittedAt).Scan(&sub.ID)
	if err != nil {
		return form.Submission{}, errors.Wrap(err, "saving submission")
	}
	return sub, nil
}

func (repo formRepository) GetSubmission(ctx context.Context, formID, userID int) (form.Submission, error) {
	var row struct {
		ID          int         `db:"id"`
		FormID      int         `db:"form_id"`
		UserID      int         `db:"user_id"`
		Payload     payloadJSON `db:"payload"`
		SubmittedAt time.Time   `db:"submitted_at"`
	}
	query := `SELECT * FROM form_submissions WHERE form_id = $1 AND user_id = $2`
	if err := repo.db.GetContext(ctx, &row, query, formID, userID); err != nil {
		return form.Submission{}, trapNoRowsErr(err, form.ErrSubmissionNotFound, "finding submission")
	}
	return form.Submission{
		ID:          row.ID,
		FormID:      row.FormID,
		UserID:      row.UserID,
		Payload:     row.Payload,
		SubmittedAt: row.SubmittedAt,
	}, nil
}

func (repo formRepository) DeleteSubmission(ctx context.Context, formID, userID int) error {
	query := `DELETE FROM form_submissions WHERE form_id = $1 AND user_id = $2`
	res, err := repo.db.ExecContext(ctx, query, formID, userID)
	if err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return form.ErrSubmissionNotFound
	}
	return nil
}

func (repo formRepository) QuerySubmissionsByForm(ctx context.Context, formID int) ([]form.SubmissionDetail, error) {
	query := `
SELECT s.id, s.form_id, s.user_id, s.payload, s.submitted_at,
       u.full_name, u.email, u.reg_no
FROM form_submissions s
JOIN users u ON u.id = s.user_id
WHERE s.form_id = $1
ORDER BY s.submitted_at DESC`
	var rows []struct {
		ID          int         `db:"id"`
		FormID      int         `db:"form_id"`
		UserID      int         `db:"user_id"`
		Payload     payloadJSON `db:"payload"`
		SubmittedAt time.Time   `db:"submitted_at"`
		FullName    string      `db:"full_name"`
		Email       string      `db:"email"`
		RegNo       string      `db:"reg_no"`
	}
	if err := repo.db.SelectContext(ctx, &rows, query, formID); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]form.SubmissionDetail, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, form.SubmissionDetail{
			Submission: form.Submission{
				ID:          r.ID,
				FormID:      r.FormID,
				UserID:      r.UserID,
				Payload:     r.Payload,
				SubmittedAt: r.SubmittedAt,
			},
			FullName: r.FullName,
			Email:    r.Email,
			RegNo:    r.RegNo,
		})
	}
	return subs, nil
}

func (repo formRepository) GetSubmittedUserIDs(ctx context.Context, formID int) ([]int, error) {
	var ids []int
	query := `SELECT DISTINCT user_id FROM form_submissions WHERE form_id = $1`
	if err := repo.db.SelectContext(ctx, &ids, query, formID); err != nil {
		return nil, errors.Wrap(err, "querying submitted users")
	}
	return ids, nil
}

func (repo formRepository) GetSubmissionsByUser(ctx context.Context, userID int) ([]form.Submission, error) {
	var rows []struct {
		ID          int         `db:"id"`
		FormID      int         `db:"form_id"`
		UserID      int         `db:"user_id"`
		Payload     payloadJSON `db:"payload"`
		SubmittedAt time.Time   `db:"submitted_at"`
	}
	query := `SELECT * FROM form_submissions WHERE user_id = $1 ORDER BY submitted_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying user submissions")
	}
	subs := make([]form.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, form.Submission{
			ID:          r.ID,
			FormID:      r.FormID,
			UserID:      r.UserID,
			Payload:     r.Payload,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return subs, nil
}

func (repo formRepository) GetGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	query := `SELECT group_id FROM group_memberships WHERE user_id = $1`
	if err := repo.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying user groups")
	}
	return ids, nil
}
