package paysim

import (
	"time"

	"github.com/xraph/paysim/internal/entity"
)

// Entity is the base type embedded by all paysim domain objects.
type Entity = entity.Entity

// NewEntity returns an Entity created at now and owned by account.
func NewEntity(now time.Time, account string) Entity {
	return entity.New(now, account)
}
