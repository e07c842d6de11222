package dummydb

import (
	"context"
	"sort"

	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/user"
)

type groupRepository struct {
	db    *groupTable
	users *userTable
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db.group, users: db.user}
}

func (repo *groupRepository) memberCount(groupID int) int {
	return len(repo.db.members[groupID])
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	grp.ID = repo.db.pkCount
	repo.db.table[grp.ID] = &grp
	repo.db.members[grp.ID] = make(map[int]struct{})
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(ctx context.Context, id int) (group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	grp, ok := repo.db.table[id]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	g := *grp
	g.MemberCount = repo.memberCount(id)
	return g, nil
}

func (repo *groupRepository) QueryAllGroups(ctx context.Context) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]group.Group, 0, len(repo.db.table))
	for id, grp := range repo.db.table {
		g := *grp
		g.MemberCount = repo.memberCount(id)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[grp.ID]; !ok {
		return group.Group{}, group.ErrNotFound
	}
	repo.db.table[grp.ID] = &grp
	grp.MemberCount = repo.memberCount(grp.ID)
	return grp, nil
}

func (repo *groupRepository) DeleteGroup(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return group.ErrNotFound
	}
	delete(repo.db.table, id)
	delete(repo.db.members, id)
	return nil
}

func (repo *groupRepository) AddMembers(ctx context.Context, groupID int, userIDs ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	members, ok := repo.db.members[groupID]
	if !ok {
		members = make(map[int]struct{})
		repo.db.members[groupID] = members
	}
	for _, id := range userIDs {
		members[id] = struct{}{}
	}
	return nil
}

func (repo *groupRepository) ReplaceMembers(ctx context.Context, groupID int, userIDs []int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	members := make(map[int]struct{}, len(userIDs))
	for _, id := range userIDs {
		members[id] = struct{}{}
	}
	repo.db.members[groupID] = members
	return nil
}

func (repo *groupRepository) GetMemberIDs(ctx context.Context, groupID int) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]int, 0, len(repo.db.members[groupID]))
	for id := range repo.db.members[groupID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *groupRepository) GetMemberIDsByGroup(ctx context.Context, groupIDs ...int) (map[int][]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := make(map[int][]int, len(groupIDs))
	for _, gid := range groupIDs {
		set, ok := repo.db.members[gid]
		if !ok || len(set) == 0 {
			continue
		}
		ids := make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		members[gid] = ids
	}
	return members, nil
}

func (repo *groupRepository) GetMembers(ctx context.Context, groupID int) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	users := make([]user.User, 0, len(repo.db.members[groupID]))
	for id := range repo.db.members[groupID] {
		if usr, ok := repo.users.table[id]; ok {
			users = append(users, *usr)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}
