package form

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ResolveAudience computes the deduplicated set of people reachable through the
// form's assignments: direct targets unioned with the current members of each
// targeted group. A person reachable both directly and via a group counts once.
// A form with no assignments, or groups with no members, resolve to an empty
// set, not an error.
func (svc *Service) ResolveAudience(ctx context.Context, formID int) ([]int, error) {
	reach, err := svc.resolveReach(ctx, formID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(reach))
	for id := range reach {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// resolveReach returns, per resolved recipient, the earliest due date among the
// assignments reaching them (zero time when none of them carries one). The map
// is built from a single read of assignments plus one batched membership read,
// so one call never mixes pre- and post-edit membership.
func (svc *Service) resolveReach(ctx context.Context, formID int) (map[int]time.Time, error) {
	asgs, err := svc.repo.GetAssignmentsByForm(ctx, formID)
	if err != nil {
		return nil, errors.Wrap(err, "reading assignments")
	}
	return svc.reachFrom(ctx, asgs)
}

// reachFrom expands already-read assignment rows into the per-recipient reach
// map.
func (svc *Service) reachFrom(ctx context.Context, asgs []Assignment) (map[int]time.Time, error) {
	groupIDs := make([]int, 0, len(asgs))
	for _, a := range asgs {
		if a.GroupID.Valid {
			groupIDs = append(groupIDs, int(a.GroupID.Int))
		}
	}
	members, err := svc.grpSvc.MemberIDsByGroup(ctx, groupIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding group targets")
	}

	reach := make(map[int]time.Time)
	add := func(userID int, due time.Time) {
		cur, ok := reach[userID]
		if !ok {
			reach[userID] = due
			return
		}
		// keep the earliest non-zero due date
		if !due.IsZero() && (cur.IsZero() || due.Before(cur)) {
			reach[userID] = due
		}
	}
	for _, a := range asgs {
		var due time.Time
		if a.DueDate.Valid {
			due = a.DueDate.Time
		}
		if a.UserID.Valid {
			add(int(a.UserID.Int), due)
		}
		if a.GroupID.Valid {
			for _, uid := range members[int(a.GroupID.Int)] {
				add(uid, due)
			}
		}
	}
	return reach, nil
}
