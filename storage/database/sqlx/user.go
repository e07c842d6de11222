package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/user"
)

type userRow struct {
	ID           int       `db:"id"`
	FullName     string    `db:"full_name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Mobile       string    `db:"mobile"`
	RegNo        string    `db:"reg_no"`
	Role         string    `db:"role"`
	Degree       string    `db:"degree"`
	Branch       string    `db:"branch"`
	Year         string    `db:"year"`
	Section      string    `db:"section"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) unpack() user.User {
	return user.User{
		ID:       r.ID,
		FullName: r.FullName,
		Username: r.Username,
		Email:    r.Email,
		Mobile:   r.Mobile,
		RegNo:    r.RegNo,
		Role:     r.Role,
		Cohort: user.Cohort{
			Degree:  r.Degree,
			Branch:  r.Branch,
			Year:    r.Year,
			Section: r.Section,
		},
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func unpackUserRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.unpack())
	}
	return users
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM users WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		query += ` AND id NOT IN (?)`
		args = append(args, ids)
	}

	q, params, err := inQuery(query, args...)
	if err != nil {
		return err
	}
	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, row := range rows {
		if row.Username == username {
			return user.ErrUsernameExists
		}
		if row.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
INSERT INTO users (full_name, username, email, mobile, reg_no, role, degree, branch, year, section, is_active, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`
	err := repo.db.QueryRowContext(
		ctx, query,
		usr.FullName, usr.Username, usr.Email, usr.Mobile, usr.RegNo, usr.Role,
		usr.Cohort.Degree, usr.Cohort.Branch, usr.Cohort.Year, usr.Cohort.Section,
		usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return row.unpack(), nil
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids ...int) ([]user.User, error) {
	q, params, err := inQuery(`SELECT * FROM users WHERE id IN (?) ORDER BY full_name`, ids)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return nil, errors.Wrap(err, "finding users by ID")
	}
	return unpackUserRows(rows), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	var row userRow
	query := `SELECT * FROM users WHERE username = $1 OR email = $1`
	if err := repo.db.GetContext(ctx, &row, query, uname); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.unpack(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := `SELECT * FROM users WHERE is_active`
	var args []interface{}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, filter.Role)
	}
	if !filter.Cohort.IsZero() {
		query += ` AND TRIM(LOWER(degree)) = ? AND TRIM(LOWER(branch)) = ? AND TRIM(LOWER(year)) = ? AND TRIM(LOWER(section)) = ?`
		args = append(args,
			core.CleanString(filter.Cohort.Degree, true),
			core.CleanString(filter.Cohort.Branch, true),
			core.CleanString(filter.Cohort.Year, true),
			core.CleanString(filter.Cohort.Section, true),
		)
	}
	if filter.Search != "" {
		query += ` AND (full_name ILIKE ? OR username ILIKE ? OR email ILIKE ? OR reg_no ILIKE ?)`
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like, like)
	}
	query += ` ORDER BY full_name`

	q, params, err := inQuery(query, args...)
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, q, params...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return unpackUserRows(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
UPDATE users
SET full_name = $1, email = $2, mobile = $3, reg_no = $4, role = $5,
    degree = $6, branch = $7, year = $8, section = $9,
    is_active = $10, password_hash = $11, updated_at = $12
WHERE id = $13`
	res, err := repo.db.ExecContext(
		ctx, query,
		usr.FullName, usr.Email, usr.Mobile, usr.RegNo, usr.Role,
		usr.Cohort.Degree, usr.Cohort.Branch, usr.Cohort.Year, usr.Cohort.Section,
		usr.IsActive, usr.PasswordHash, usr.UpdatedAt, usr.ID,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
