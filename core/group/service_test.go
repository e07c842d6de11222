package group_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/user"
	dummydb "github.com/aceportal/formflow/storage/database/dummy"
)

func setup(t *testing.T) (*group.Service, *user.Service) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	usrSvc := user.NewService(dummydb.NewUserRepository(db))
	return group.NewService(dummydb.NewGroupRepository(db), usrSvc), usrSvc
}

func createStudent(t *testing.T, svc *user.Service, name string, cohort user.Cohort) user.User {
	t.Helper()
	usr, err := svc.Create(context.Background(), user.NewUser{
		FullName: name,
		Username: name,
		Email:    name + "@test.cm",
		Role:     user.RoleStudent,
		Cohort:   cohort,
		Password: "LordOfTheRings",
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return usr
}

func TestService_Create_autoPopulatesMembers(t *testing.T) {
	grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	cohort := user.Cohort{Degree: "BTech", Branch: "CSE", Year: "2", Section: "A"}
	p1 := createStudent(t, usrSvc, "p1", cohort)
	// inconsistent casing and whitespace still match
	p2 := createStudent(t, usrSvc, "p2", user.Cohort{Degree: " btech ", Branch: "cse", Year: "2", Section: "a"})
	createStudent(t, usrSvc, "p3", user.Cohort{Degree: "BTech", Branch: "ECE", Year: "2", Section: "A"})

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CSE-2-A", Cohort: cohort})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if grp.MemberCount != 2 {
		t.Errorf("MemberCount = %d; want 2", grp.MemberCount)
	}
	ids, err := grpSvc.MemberIDs(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberIDs() failed: %v", err)
	}
	if want := []int{p1.ID, p2.ID}; !reflect.DeepEqual(ids, want) {
		t.Errorf("MemberIDs() = %v; want %v", ids, want)
	}
}

func TestService_Create_membershipIsExplicit(t *testing.T) {
	grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	cohort := user.Cohort{Degree: "BTech", Branch: "CSE", Year: "2", Section: "A"}
	p1 := createStudent(t, usrSvc, "p1", cohort)

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CSE-2-A", Cohort: cohort})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// moving the user to another cohort does not move them out of the group
	p1.Cohort.Section = "B"
	if _, err = usrSvc.Update(ctx, p1); err != nil {
		t.Fatalf("updating user failed: %v", err)
	}
	ids, err := grpSvc.MemberIDs(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberIDs() failed: %v", err)
	}
	if want := []int{p1.ID}; !reflect.DeepEqual(ids, want) {
		t.Errorf("MemberIDs() = %v; want %v", ids, want)
	}

	// nor does a matching user created later join retroactively
	createStudent(t, usrSvc, "p2", cohort)
	if ids, _ = grpSvc.MemberIDs(ctx, grp.ID); len(ids) != 1 {
		t.Errorf("MemberIDs() = %v; want the original member only", ids)
	}
}

func TestService_SetMembers(t *testing.T) {
	grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	p1 := createStudent(t, usrSvc, "p1", user.Cohort{})
	p2 := createStudent(t, usrSvc, "p2", user.Cohort{})

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "Hostel-3"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// duplicates collapse to one membership row
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID, p1.ID, p2.ID}); err != nil {
		t.Fatalf("SetMembers() failed: %v", err)
	}
	ids, err := grpSvc.MemberIDs(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberIDs() failed: %v", err)
	}
	if want := []int{p1.ID, p2.ID}; !reflect.DeepEqual(ids, want) {
		t.Errorf("MemberIDs() = %v; want %v", ids, want)
	}

	// replacement is authoritative, not additive
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p2.ID}); err != nil {
		t.Fatalf("SetMembers() failed: %v", err)
	}
	if ids, _ = grpSvc.MemberIDs(ctx, grp.ID); !reflect.DeepEqual(ids, []int{p2.ID}) {
		t.Errorf("MemberIDs() = %v; want %v", ids, []int{p2.ID})
	}

	if err = grpSvc.SetMembers(ctx, 987, []int{p1.ID}); errors.Cause(err) != group.ErrNotFound {
		t.Errorf("SetMembers() on unknown group error = %v; want %v", err, group.ErrNotFound)
	}
}

func TestService_Delete_cascadesMemberships(t *testing.T) {
	grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	p1 := createStudent(t, usrSvc, "p1", user.Cohort{})
	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "Hostel-3"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID}); err != nil {
		t.Fatalf("SetMembers() failed: %v", err)
	}

	if err = grpSvc.Delete(ctx, grp.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err = grpSvc.GetByID(ctx, grp.ID); errors.Cause(err) != group.ErrNotFound {
		t.Errorf("GetByID() error = %v; want %v", err, group.ErrNotFound)
	}
	byGroup, err := grpSvc.MemberIDsByGroup(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberIDsByGroup() failed: %v", err)
	}
	if _, ok := byGroup[grp.ID]; ok {
		t.Error("membership rows survived group deletion")
	}
}

func TestService_Members_sortedByName(t *testing.T) {
	grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	zed := createStudent(t, usrSvc, "zed", user.Cohort{})
	amy := createStudent(t, usrSvc, "amy", user.Cohort{})

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "Hostel-3"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{zed.ID, amy.ID}); err != nil {
		t.Fatalf("SetMembers() failed: %v", err)
	}

	members, err := grpSvc.Members(ctx, grp.ID)
	if err != nil {
		t.Fatalf("Members() failed: %v", err)
	}
	if len(members) != 2 || members[0].FullName != "amy" || members[1].FullName != "zed" {
		t.Errorf("Members() = %+v; want [amy zed]", members)
	}
}
