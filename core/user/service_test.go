package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/user"
	dummydb "github.com/aceportal/formflow/storage/database/dummy"
)

func setup(t *testing.T) *user.Service {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return user.NewService(dummydb.NewUserRepository(db))
}

func createUser(t *testing.T, svc *user.Service, nu user.NewUser) user.User {
	t.Helper()
	if nu.Password == "" {
		nu.Password = "LordOfTheRings"
	}
	usr, err := svc.Create(context.Background(), nu)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func TestService_Create_uniqueness(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	createUser(t, svc, user.NewUser{
		FullName: "Awe Some", Username: "awesome", Email: "awe@some.cm", Role: user.RoleStudent,
	})

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{
			name: "duplicate username",
			nu: user.NewUser{
				FullName: "Other", Username: "awesome", Email: "other@test.cm", Role: user.RoleStudent,
			},
			wantField: "username",
		},
		{
			// cleaning lower-cases before the check
			name: "duplicate email different case",
			nu: user.NewUser{
				FullName: "Other", Username: "other", Email: "AWE@SOME.CM", Role: user.RoleStudent,
			},
			wantField: "email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.nu.Password = "LordOfTheRings"
			_, err := svc.Create(context.Background(), tt.nu)
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			if !ok {
				t.Fatalf("Create() error = %v; want ValidationError", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != tt.wantField {
				t.Errorf("Create() fields = %+v; want %q", vErr.Fields, tt.wantField)
			}
		})
	}

	usr, err := svc.GetByUsernameOrEmail(ctx, "awesome")
	if err != nil {
		t.Fatalf("GetByUsernameOrEmail() failed: %v", err)
	}
	usr.FullName = "Awe Somer"
	if _, err = svc.Update(ctx, usr); err != nil {
		t.Errorf("Update() failed: %v", err)
	}
}

func TestService_GetByUsernameOrEmail(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	want := createUser(t, svc, user.NewUser{
		FullName: "Awe Some", Username: "awesome", Email: "awe@some.cm", Role: user.RoleStudent,
	})

	for _, uname := range []string{"awesome", "awe@some.cm"} {
		got, err := svc.GetByUsernameOrEmail(ctx, uname)
		if err != nil {
			t.Fatalf("GetByUsernameOrEmail(%q) failed: %v", uname, err)
		}
		if got.ID != want.ID {
			t.Errorf("GetByUsernameOrEmail(%q) = %d; want %d", uname, got.ID, want.ID)
		}
	}

	if _, err := svc.GetByUsernameOrEmail(ctx, "nobody"); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetByUsernameOrEmail() error = %v; want %v", err, user.ErrNotFound)
	}
}

func TestService_Filter(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	cohortA := user.Cohort{Degree: "BTech", Branch: "CSE", Year: "2", Section: "A"}
	createUser(t, svc, user.NewUser{
		FullName: "Amy Pond", Username: "amy", Email: "amy@test.cm", RegNo: "R001",
		Role: user.RoleStudent, Cohort: cohortA,
	})
	createUser(t, svc, user.NewUser{
		FullName: "Ben Okri", Username: "ben", Email: "ben@test.cm", RegNo: "R002",
		Role: user.RoleStudent, Cohort: user.Cohort{Degree: "BTech", Branch: "ECE", Year: "2", Section: "A"},
	})
	createUser(t, svc, user.NewUser{
		FullName: "Teach One", Username: "teach", Email: "teach@test.cm", Role: user.RoleTeacher,
	})

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []string // usernames, in order
	}{
		{name: "by role", filter: user.QueryFilter{Role: user.RoleTeacher}, want: []string{"teach"}},
		{
			// cohort matching tolerates casing and whitespace
			name:   "by cohort",
			filter: user.QueryFilter{Cohort: user.Cohort{Degree: " btech ", Branch: "CSE", Year: "2", Section: "a"}},
			want:   []string{"amy"},
		},
		{name: "by reg no", filter: user.QueryFilter{Search: "R002"}, want: []string{"ben"}},
		{name: "by name fragment", filter: user.QueryFilter{Search: "pond"}, want: []string{"amy"}},
		{name: "no match", filter: user.QueryFilter{Search: "nope"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Filter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Filter() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Filter() = %+v; want %v", got, tt.want)
			}
			for i, usr := range got {
				if usr.Username != tt.want[i] {
					t.Errorf("Filter()[%d] = %q; want %q", i, usr.Username, tt.want[i])
				}
			}
		})
	}

	// deactivated users drop out of every listing
	usr, err := svc.GetByUsernameOrEmail(ctx, "amy")
	if err != nil {
		t.Fatalf("GetByUsernameOrEmail() failed: %v", err)
	}
	usr.IsActive = false
	if _, err = svc.Update(ctx, usr); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	got, err := svc.StudentsInCohort(ctx, cohortA)
	if err != nil {
		t.Fatalf("StudentsInCohort() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("StudentsInCohort() = %+v; want empty after deactivation", got)
	}
}
