// Package entity defines the fields shared by every stored domain object.
package entity

import "time"

// Entity is embedded by all paysim domain objects.
type Entity struct {
	Created   int64  `json:"created"`
	AccountID string `json:"account,omitempty"`
}

// New returns an Entity created now and owned by account ("" is global).
func New(now time.Time, account string) Entity {
	return Entity{Created: now.Unix(), AccountID: account}
}

// Account returns the owning account id, "" for global objects.
func (e Entity) Account() string { return e.AccountID }
