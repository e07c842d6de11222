package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUsersByID(ctx context.Context, ids ...int) ([]User, error)
		GetUserByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		// FilterUsers applies an AND operation on available QueryFilter fields.
		// Cohort attributes are matched trimmed and lower-cased.
		FilterUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.repo.CheckUsernameUniqueness(ctx, nu.Username, nu.Email); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return User{}, err
		}
		return User{}, core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}

	now := time.Now().UTC()
	usr := User{
		FullName:  nu.FullName,
		Username:  nu.Username,
		Email:     nu.Email,
		Mobile:    nu.Mobile,
		RegNo:     nu.RegNo,
		Role:      nu.Role,
		Cohort:    nu.Cohort,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByIDs(ctx context.Context, ids ...int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return svc.repo.GetUsersByID(ctx, ids...)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter)
}

// Staff returns all teacher accounts.
func (svc *Service) Staff(ctx context.Context) ([]User, error) {
	return svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleTeacher})
}

// StudentsInCohort returns all student accounts whose cohort attributes match,
// trimmed and lower-cased.
func (svc *Service) StudentsInCohort(ctx context.Context, cohort Cohort) ([]User, error) {
	return svc.repo.FilterUsers(ctx, QueryFilter{Role: RoleStudent, Cohort: cohort})
}

func (svc *Service) Update(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
