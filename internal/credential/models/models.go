package models

import (
	"time"

	id "tripkey/pkg/domain"
)

// Credential is the single live PIN hash of a trip. The plaintext is never kept.
type Credential struct {
	TripID id.TripID
	// Hash is a bcrypt digest; the salt is embedded in it.
	Hash      string
	CreatedAt time.Time
	RotatedAt time.Time
	// RotatedBy is nil until the first rotation.
	RotatedBy *id.MemberID
}

// Replace swaps in a new hash and records who rotated it.
func (c *Credential) Replace(hash string, actor id.MemberID, now time.Time) {
	c.Hash = hash
	c.RotatedAt = now
	c.RotatedBy = &actor
}

func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.RotatedBy != nil {
		actor := *c.RotatedBy
		out.RotatedBy = &actor
	}
	return &out
}
