// Package dummydb is an in-memory storage backend used by tests.
package dummydb

import (
	"sync"

	"github.com/aceportal/formflow/core/form"
	"github.com/aceportal/formflow/core/group"
	"github.com/aceportal/formflow/core/notification"
	"github.com/aceportal/formflow/core/user"
)

type (
	DB struct {
		user         *userTable
		group        *groupTable
		form         *formTable
		notification *notificationTable
	}

	userTable struct {
		sync.RWMutex
		pkCount int
		table   map[int]*user.User
	}

	groupTable struct {
		sync.RWMutex
		pkCount int
		table   map[int]*group.Group
		// memberships: group ID -> member user IDs
		members map[int]map[int]struct{}
	}

	formTable struct {
		sync.RWMutex
		pkCount       int
		asgPkCount    int
		subPkCount    int
		table         map[int]*form.Form
		assignments   map[int]*form.Assignment
		submissions   map[int]*form.Submission
		viewers       map[int]map[int]struct{} // form ID -> user IDs
		assigners     map[int]map[int]struct{} // form ID -> user IDs
	}

	notificationTable struct {
		sync.RWMutex
		pkCount    int
		recPkCount int
		table      map[int]*notification.Notification
		deliveries map[int]*notification.DeliveryRecord
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[int]*user.User)},
		group: &groupTable{
			table:   make(map[int]*group.Group),
			members: make(map[int]map[int]struct{}),
		},
		form: &formTable{
			table:       make(map[int]*form.Form),
			assignments: make(map[int]*form.Assignment),
			submissions: make(map[int]*form.Submission),
			viewers:     make(map[int]map[int]struct{}),
			assigners:   make(map[int]map[int]struct{}),
		},
		notification: &notificationTable{
			table:      make(map[int]*notification.Notification),
			deliveries: make(map[int]*notification.DeliveryRecord),
		},
	}
	return db, nil
}
