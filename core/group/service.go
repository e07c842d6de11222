package group

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/aceportal/formflow/core/user"
)

var ErrNotFound = errors.New("group not found")

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroupByID(ctx context.Context, id int) (Group, error)
		// QueryAllGroups returns all groups with MemberCount populated from
		// membership rows, ordered by name.
		QueryAllGroups(ctx context.Context) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		// DeleteGroup removes the group and cascades to its membership rows.
		DeleteGroup(ctx context.Context, id int) error

		// AddMembers inserts (group, user) pairs, ignoring duplicates.
		AddMembers(ctx context.Context, groupID int, userIDs ...int) error
		// ReplaceMembers atomically swaps the member set for the given one.
		ReplaceMembers(ctx context.Context, groupID int, userIDs []int) error
		GetMemberIDs(ctx context.Context, groupID int) ([]int, error)
		// GetMemberIDsByGroup batches membership reads for several groups in
		// one query; missing/empty groups simply have no entry.
		GetMemberIDsByGroup(ctx context.Context, groupIDs ...int) (map[int][]int, error)
		GetMembers(ctx context.Context, groupID int) ([]user.User, error)
	}

	Service struct {
		repo   Repository
		usrSvc *user.Service
	}
)

func NewService(repo Repository, usrSvc *user.Service) *Service {
	return &Service{repo: repo, usrSvc: usrSvc}
}

// Create creates the group and populates its membership rows from the students
// matching the cohort attributes. The explicit rows are authoritative from then
// on; editing a user's attributes later does not move them between groups.
func (svc *Service) Create(ctx context.Context, ng NewGroup) (Group, error) {
	ng.Clean()
	grp, err := svc.repo.CreateGroup(ctx, Group{
		Name:        ng.Name,
		Description: ng.Description,
		Cohort:      ng.Cohort,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Group{}, errors.Wrap(err, "creating group")
	}

	if !ng.Cohort.IsZero() {
		students, err := svc.usrSvc.StudentsInCohort(ctx, ng.Cohort)
		if err != nil {
			return Group{}, errors.Wrap(err, "matching students for new group")
		}
		if len(students) > 0 {
			ids := make([]int, 0, len(students))
			for _, s := range students {
				ids = append(ids, s.ID)
			}
			if err = svc.repo.AddMembers(ctx, grp.ID, ids...); err != nil {
				return Group{}, errors.Wrap(err, "auto-assigning members")
			}
			grp.MemberCount = len(ids)
		}
	}
	return grp, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryAllGroups(ctx)
}

func (svc *Service) Update(ctx context.Context, id int, ug UpdateGroup) (Group, error) {
	grp, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return Group{}, err
	}
	grp.Name = ug.Name
	grp.Description = ug.Description
	grp.Cohort = ug.Cohort
	return svc.repo.UpdateGroup(ctx, grp)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteGroup(ctx, id)
}

// MemberIDs returns the current member set of a group, from explicit membership
// rows only. An empty group is not an error.
func (svc *Service) MemberIDs(ctx context.Context, groupID int) ([]int, error) {
	return svc.repo.GetMemberIDs(ctx, groupID)
}

// MemberIDsByGroup batches MemberIDs across groups.
func (svc *Service) MemberIDsByGroup(ctx context.Context, groupIDs ...int) (map[int][]int, error) {
	if len(groupIDs) == 0 {
		return map[int][]int{}, nil
	}
	return svc.repo.GetMemberIDsByGroup(ctx, groupIDs...)
}

func (svc *Service) Members(ctx context.Context, groupID int) ([]user.User, error) {
	if _, err := svc.repo.GetGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	return svc.repo.GetMembers(ctx, groupID)
}

// SetMembers replaces the group's member set with the given user ids.
func (svc *Service) SetMembers(ctx context.Context, groupID int, userIDs []int) error {
	if _, err := svc.repo.GetGroupByID(ctx, groupID); err != nil {
		return err
	}
	return svc.repo.ReplaceMembers(ctx, groupID, dedupIDs(userIDs))
}

func dedupIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
