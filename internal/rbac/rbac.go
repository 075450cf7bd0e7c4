// Package rbac holds the authorization policy for leads, their ledgers, and
// user management. Decisions are pure functions over an actor and a target:
// admins hold a total override, members act only on what they own.
package rbac

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Actor is the authenticated identity an operation runs as.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleMember:
		return Role(role)
	default:
		return RoleMember
	}
}

// ValidRole reports whether role is one of the closed set. Unlike Normalize
// it does not coerce: user creation must reject unknown roles outright.
func ValidRole(role string) bool {
	switch Role(role) {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

func CanCreateLead(actor Actor) bool {
	return actor.IsAdmin()
}

func CanDeleteLead(actor Actor) bool {
	return actor.IsAdmin()
}

// CanUpdateLead allows admins and the lead's current owner. assignedTo is the
// stored owner reference, empty when the lead is unassigned.
func CanUpdateLead(actor Actor, assignedTo string) bool {
	if actor.IsAdmin() {
		return true
	}
	return assignedTo != "" && assignedTo == actor.ID
}

func CanEditHistoryDescription(actor Actor, assignedTo string) bool {
	return CanUpdateLead(actor, assignedTo)
}

// CanSetCampaignSender gates the proposed sentBy on create and edit: admins
// may attribute a campaign to anyone, members only to themselves.
func CanSetCampaignSender(actor Actor, sentBy string) bool {
	if actor.IsAdmin() {
		return true
	}
	return sentBy == actor.ID
}

// CanEditCampaign allows admins and the campaign's original sender.
func CanEditCampaign(actor Actor, sentBy string) bool {
	if actor.IsAdmin() {
		return true
	}
	return sentBy == actor.ID
}

func CanDeleteCampaign(actor Actor) bool {
	return actor.IsAdmin()
}

func CanManageUsers(actor Actor) bool {
	return actor.IsAdmin()
}

// CanViewAssignedLeads allows admins to read any user's assignment set and
// members to read only their own.
func CanViewAssignedLeads(actor Actor, ownerID string) bool {
	if actor.IsAdmin() {
		return true
	}
	return ownerID == actor.ID
}
