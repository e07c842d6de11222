package group

import (
	"time"

	"github.com/aceportal/formflow/core"
	"github.com/aceportal/formflow/core/user"
)

type Group struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Cohort      user.Cohort `json:"cohort"`
	MemberCount int         `json:"member_count"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
}

// NewGroup is the payload for creating a Group. The cohort attributes are used
// once, at creation time, to populate explicit membership rows; they are never
// consulted again when reading members.
type NewGroup struct {
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description"`
	Cohort      user.Cohort `json:"cohort"`
}

func (ng *NewGroup) Clean() {
	ng.Name = core.CleanString(ng.Name)
	ng.Description = core.CleanString(ng.Description)
}

type UpdateGroup struct {
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description"`
	Cohort      user.Cohort `json:"cohort"`
}
