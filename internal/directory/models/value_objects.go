package models

import dErrors "tripkey/pkg/domain-errors"

type Role string

const (
	RoleElevated Role = "elevated"
	RoleStandard Role = "standard"
)

func (r Role) IsValid() bool {
	return r == RoleElevated || r == RoleStandard
}

func (r Role) String() string { return string(r) }

// ParseRole validates a role read from an untrusted source such as token claims.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// MemberState is the lifecycle state of a membership. Every authorization site
// switches over it exhaustively.
type MemberState string

const (
	MemberStateActive  MemberState = "active"
	MemberStateRemoved MemberState = "removed"
)

func (s MemberState) IsValid() bool {
	return s == MemberStateActive || s == MemberStateRemoved
}
