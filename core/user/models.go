package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aceportal/formflow/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

// Cohort holds the academic attributes students are grouped by.
type Cohort struct {
	Degree  string `json:"degree" query:"degree"`
	Branch  string `json:"branch" query:"branch"`
	Year    string `json:"year" query:"year"`
	Section string `json:"section" query:"section"`
}

// Matches compares cohorts case/whitespace-insensitively; data entry for these
// attributes is inconsistent and a strict compare produces false negatives.
func (c Cohort) Matches(other Cohort) bool {
	eq := func(a, b string) bool { return core.CleanString(a, true) == core.CleanString(b, true) }
	return eq(c.Degree, other.Degree) &&
		eq(c.Branch, other.Branch) &&
		eq(c.Year, other.Year) &&
		eq(c.Section, other.Section)
}

func (c Cohort) IsZero() bool {
	return c.Degree == "" && c.Branch == "" && c.Year == "" && c.Section == ""
}

type User struct {
	ID           int       `json:"id"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	RegNo        string    `json:"reg_no"`
	Role         string    `json:"role"`
	Cohort       Cohort    `json:"cohort"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser is the payload for creating a User (admin CLI / admin API).
type NewUser struct {
	FullName string `json:"full_name" validate:"required"`
	Username string `json:"username" validate:"required,alphanum_"`
	Email    string `json:"email" validate:"required,email"`
	Mobile   string `json:"mobile"`
	RegNo    string `json:"reg_no"`
	Role     string `json:"role" validate:"required,role"`
	Cohort   Cohort `json:"cohort"`
	Password string `json:"password" validate:"required"`
}

func (nu *NewUser) Clean() {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Username = core.CleanString(nu.Username, true)
	nu.Email = core.CleanString(nu.Email, true)
	nu.Role = core.CleanString(nu.Role, true)
}

// QueryFilter applies an AND operation on its non-zero fields.
type QueryFilter struct {
	Role   string `json:"role" query:"role"`
	Cohort Cohort
	Search string `json:"search" query:"search"`
}
