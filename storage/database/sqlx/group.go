package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/user"
)

type groupRow struct {
	ID          int       `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Degree      string    `db:"degree"`
	Branch      string    `db:"branch"`
	Year        string    `db:"year"`
	Section     string    `db:"section"`
	MemberCount int       `db:"member_count"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r groupRow) unpack() group.Group {
	return group.Group{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Cohort: user.Cohort{
			Degree:  r.Degree,
			Branch:  r.Branch,
			Year:    r.Year,
			Section: r.Section,
		},
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
	}
}

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{db: db}
}

func (repo groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	query := `
INSERT INTO student_groups (name, description, degree, branch, year, section, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err := repo.db.QueryRowContext(
		ctx, query,
		grp.Name, grp.Description,
		grp.Cohort.Degree, grp.Cohort.Branch, grp.Cohort.Year, grp.Cohort.Section,
		grp.CreatedAt,
	).Scan(&grp.ID)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "creating group")
	}
	return grp, nil
}

func (repo groupRepository) GetGroupByID(ctx context.Context, id int) (group.Group, error) {
	query := `
SELECT g.*, COUNT(m.id) AS member_count
FROM student_groups g
LEFT JOIN group_memberships m ON m.group_id = g.id
WHERE g.id = $1
GROUP BY g.id`
	var row groupRow
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		return group.Group{}, trapNoRowsErr(err, group.ErrNotFound, "finding group by ID")
	}
	return row.unpack(), nil
}

func (repo groupRepository) QueryAllGroups(ctx context.Context) ([]group.Group, error) {
	query := `
SELECT g.*, COUNT(m.id) AS member_count
FROM student_groups g
LEFT JOIN group_memberships m ON m.group_id = g.id
GROUP BY g.id
ORDER BY g.name`
	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.unpack())
	}
	return groups, nil
}

func (repo groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	query := `
UPDATE student_groups
SET name = $1, description = $2, degree = $3, branch = $4, year = $5, section = $6
WHERE id = $7`
	res, err := repo.db.ExecContext(
		ctx, query,
		grp.Name, grp.Description,
		grp.Cohort.Degree, grp.Cohort.Branch, grp.Cohort.Year, grp.Cohort.Section,
		grp.ID,
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return grp, nil
}

func (repo groupRepository) DeleteGroup(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM student_groups WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (repo groupRepository) AddMembers(ctx context.Context, groupID int, userIDs ...int) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `INSERT INTO group_memberships (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, userID := range userIDs {
		if _, err := repo.db.ExecContext(ctx, query, groupID, userID); err != nil {
			return errors.Wrap(err, "adding group member")
		}
	}
	return nil
}

func (repo groupRepository) ReplaceMembers(ctx context.Context, groupID int, userIDs []int) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM group_memberships WHERE group_id = $1`, groupID); err != nil {
		return errors.Wrap(err, "clearing group members")
	}
	query := `INSERT INTO group_memberships (group_id, user_id) VALUES ($1, $2)`
	for _, userID := range userIDs {
		if _, err = tx.ExecContext(ctx, query, groupID, userID); err != nil {
			return errors.Wrap(err, "adding group member")
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo groupRepository) GetMemberIDs(ctx context.Context, groupID int) ([]int, error) {
	var ids []int
	query := `SELECT user_id FROM group_memberships WHERE group_id = $1 ORDER BY user_id`
	if err := repo.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	return ids, nil
}

func (repo groupRepository) GetMemberIDsByGroup(ctx context.Context, groupIDs ...int) (map[int][]int, error) {
	q, params, err := inQuery(`SELECT group_id, user_id FROM group_memberships WHERE group_id IN (?)`, groupIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		GroupID int `db:"group_id"`
		UserID  int `db:"user_id"`
	}
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	members := make(map[int][]int, len(groupIDs))
	for _, row := range rows {
		members[row.GroupID] = append(members[row.GroupID], row.UserID)
	}
	return members, nil
}

func (repo groupRepository) GetMembers(ctx context.Context, groupID int) ([]user.User, error) {
	query := `
SELECT u.*
FROM users u
JOIN group_memberships m ON m.user_id = u.id
WHERE m.group_id = $1
ORDER BY u.full_name`
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	return unpackUserRows(rows), nil
}
