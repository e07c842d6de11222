package form_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/aceportal/formflow/core/form"
	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/user"
	dummydb "github.com/aceportal/formflow/storage/database/dummy"
)

func setup(t *testing.T) (*form.Service, *group.Service, *user.Service) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	usrSvc := user.NewService(dummydb.NewUserRepository(db))
	grpSvc := group.NewService(dummydb.NewGroupRepository(db), usrSvc)
	formSvc := form.NewService(dummydb.NewFormRepository(db), grpSvc, usrSvc)
	return formSvc, grpSvc, usrSvc
}

func createUser(t *testing.T, svc *user.Service, name, role string, cohort ...user.Cohort) user.User {
	t.Helper()
	nu := user.NewUser{
		FullName: name,
		Username: name,
		Email:    name + "@test.cm",
		Role:     role,
		Password: "LordOfTheRings",
	}
	if len(cohort) > 0 {
		nu.Cohort = cohort[0]
	}
	usr, err := svc.Create(context.Background(), nu)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createForm(t *testing.T, svc *form.Service, actorID int) form.Form {
	t.Helper()
	frm, err := svc.Create(context.Background(), form.NewForm{
		Title:  "Hostel Survey",
		Fields: []form.Field{{ID: "q1", Label: "Room", Type: "text", Required: true}},
	}, actorID)
	if err != nil {
		t.Fatalf("createForm() failed: %v", err)
	}
	return frm
}

func assign(t *testing.T, svc *form.Service, formID, actorID int, targets ...form.NewAssignment) {
	t.Helper()
	if err := svc.Assign(context.Background(), formID, targets, actorID); err != nil {
		t.Fatalf("assign() failed: %v", err)
	}
}

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func TestService_ResolveAudience_dedup(t *testing.T) {
	formSvc, grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, usrSvc, "p2", user.RoleStudent)

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CS-A"})
	if err != nil {
		t.Fatalf("creating group failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID, p2.ID}); err != nil {
		t.Fatalf("setting members failed: %v", err)
	}

	frm := createForm(t, formSvc, teacher.ID)
	// p1 reachable both directly and via the group
	assign(t, formSvc, frm.ID, teacher.ID,
		form.NewAssignment{UserID: intPtr(p1.ID)},
		form.NewAssignment{GroupID: intPtr(grp.ID)},
	)

	got, err := formSvc.ResolveAudience(ctx, frm.ID)
	if err != nil {
		t.Fatalf("ResolveAudience() failed: %v", err)
	}
	want := []int{p1.ID, p2.ID}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAudience() = %v; want %v", got, want)
	}
}

func TestService_ResolveAudience_emptyForm(t *testing.T) {
	formSvc, _, usrSvc := setup(t)

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	frm := createForm(t, formSvc, teacher.ID)

	got, err := formSvc.ResolveAudience(context.Background(), frm.ID)
	if err != nil {
		t.Fatalf("ResolveAudience() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ResolveAudience() = %v; want empty", got)
	}
}

func TestService_Status(t *testing.T) {
	formSvc, grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, usrSvc, "p2", user.RoleStudent)
	p3 := createUser(t, usrSvc, "p3", user.RoleStudent)

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CS-A"})
	if err != nil {
		t.Fatalf("creating group failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID, p2.ID, p3.ID}); err != nil {
		t.Fatalf("setting members failed: %v", err)
	}

	frm := createForm(t, formSvc, teacher.ID)
	due := time.Now().UTC().Add(-24 * time.Hour) // already past
	assign(t, formSvc, frm.ID, teacher.ID, form.NewAssignment{GroupID: intPtr(grp.ID), DueDate: timePtr(due)})

	if _, err = formSvc.Submit(ctx, frm.ID, p1.ID, map[string]interface{}{"q1": "A-112"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	st, err := formSvc.Status(ctx, frm.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.TotalAssigned != 3 {
		t.Errorf("TotalAssigned = %d; want 3", st.TotalAssigned)
	}
	if st.Submitted != 1 {
		t.Errorf("Submitted = %d; want 1", st.Submitted)
	}
	if st.Pending != 2 {
		t.Errorf("Pending = %d; want 2", st.Pending)
	}
	if st.Overdue != 2 {
		t.Errorf("Overdue = %d; want 2", st.Overdue)
	}
	if !st.IsOverdue {
		t.Error("IsOverdue = false; want true")
	}
	if !st.NearestDueDate.Valid || !st.NearestDueDate.Time.Equal(due) {
		t.Errorf("NearestDueDate = %v; want %v", st.NearestDueDate, due)
	}
}

func TestService_Status_emptyAudience(t *testing.T) {
	formSvc, _, usrSvc := setup(t)

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	frm := createForm(t, formSvc, teacher.ID)

	st, err := formSvc.Status(context.Background(), frm.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st != (form.Status{}) {
		t.Errorf("Status() = %+v; want all-zero", st)
	}
}

// The nearest due date comes from the assignment rows, so an assignment to a
// group with no members yet still carries it.
func TestService_Status_dueDateFromEmptyGroup(t *testing.T) {
	formSvc, grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CS-A"})
	if err != nil {
		t.Fatalf("creating group failed: %v", err)
	}

	frm := createForm(t, formSvc, teacher.ID)
	due := time.Now().UTC().Add(24 * time.Hour)
	assign(t, formSvc, frm.ID, teacher.ID, form.NewAssignment{GroupID: intPtr(grp.ID), DueDate: timePtr(due)})

	st, err := formSvc.Status(ctx, frm.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.TotalAssigned != 0 || st.Pending != 0 {
		t.Errorf("Status() = %+v; want zero recipients", st)
	}
	if !st.NearestDueDate.Valid || !st.NearestDueDate.Time.Equal(due) {
		t.Errorf("NearestDueDate = %v; want %v", st.NearestDueDate, due)
	}
	if st.IsOverdue {
		t.Error("IsOverdue = true; want false")
	}
}

// A group deleted after assignment leaves the assignment row pointing at
// nothing; the rollup must tolerate it and never report negative pending.
func TestService_Status_deletedGroup(t *testing.T) {
	formSvc, grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, usrSvc, "p1", user.RoleStudent)

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CS-A"})
	if err != nil {
		t.Fatalf("creating group failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID}); err != nil {
		t.Fatalf("setting members failed: %v", err)
	}

	frm := createForm(t, formSvc, teacher.ID)
	assign(t, formSvc, frm.ID, teacher.ID, form.NewAssignment{GroupID: intPtr(grp.ID)})

	// stray submission survives the group deletion
	if _, err = formSvc.Submit(ctx, frm.ID, p1.ID, map[string]interface{}{"q1": "A-112"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if err = grpSvc.Delete(ctx, grp.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	st, err := formSvc.Status(ctx, frm.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Pending < 0 {
		t.Errorf("Pending = %d; want >= 0", st.Pending)
	}
	if st != (form.Status{}) {
		t.Errorf("Status() = %+v; want all-zero", st)
	}
}

func TestService_PendingRecipientIDs(t *testing.T) {
	formSvc, grpSvc, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, usrSvc, "p2", user.RoleStudent)

	grp, err := grpSvc.Create(ctx, group.NewGroup{Name: "CS-A"})
	if err != nil {
		t.Fatalf("creating group failed: %v", err)
	}
	if err = grpSvc.SetMembers(ctx, grp.ID, []int{p1.ID, p2.ID}); err != nil {
		t.Fatalf("setting members failed: %v", err)
	}

	frm := createForm(t, formSvc, teacher.ID)
	assign(t, formSvc, frm.ID, teacher.ID, form.NewAssignment{GroupID: intPtr(grp.ID)})

	if _, err = formSvc.Submit(ctx, frm.ID, p1.ID, map[string]interface{}{"q1": "ok"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	got, err := formSvc.PendingRecipientIDs(ctx, frm.ID)
	if err != nil {
		t.Fatalf("PendingRecipientIDs() failed: %v", err)
	}
	want := []int{p2.ID}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PendingRecipientIDs() = %v; want %v", got, want)
	}
}

func TestService_RecipientStatuses(t *testing.T) {
	formSvc, _, usrSvc := setup(t)
	ctx := context.Background()

	teacher := createUser(t, usrSvc, "teach", user.RoleTeacher)
	p1 := createUser(t, usrSvc, "p1", user.RoleStudent)
	p2 := createUser(t, usrSvc, "p2", user.RoleStudent)

	frm := createForm(t, formSvc, teacher.ID)
	past := time.Now().UTC().Add(-time.Hour)
	assign(t, formSvc, frm.ID, teacher.ID,
		form.NewAssignment{UserID: intPtr(p1.ID), DueDate: timePtr(past)},
		form.NewAssignment{UserID: intPtr(p2.ID), DueDate: timePtr(past)},
	)

	if _, err := formSvc.Submit(ctx, frm.ID, p1.ID, map[string]interface{}{"q1": "ok"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	statuses, err := formSvc.RecipientStatuses(ctx, frm.ID)
	if err != nil {
		t.Fatalf("RecipientStatuses() failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("len(statuses) = %d; want 2", len(statuses))
	}
	byID := make(map[int]form.RecipientStatus, len(statuses))
	for _, rs := range statuses {
		byID[rs.UserID] = rs
	}
	if rs := byID[p1.ID]; !rs.Submitted || rs.Overdue {
		t.Errorf("p1 = %+v; want submitted, not overdue", rs)
	}
	if rs := byID[p2.ID]; rs.Submitted || !rs.Overdue {
		t.Errorf("p2 = %+v; want overdue, not submitted", rs)
	}
}
