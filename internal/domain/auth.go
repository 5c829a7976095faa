package domain

// Role differentiates what a token holder may do.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// SystemActor is recorded when a change has no authenticated actor.
const SystemActor = "system"

// Admin is the authenticated operator acting on the support desk.
type Admin struct {
	UID         string
	Email       string
	DisplayName string
}

// ActorLabel returns the identity written into history entries: email,
// then uid, then the system actor.
func (a *Admin) ActorLabel() string {
	if a == nil {
		return SystemActor
	}
	if a.Email != "" {
		return a.Email
	}
	if a.UID != "" {
		return a.UID
	}
	return SystemActor
}

// ID returns the uid or the system actor.
func (a *Admin) ID() string {
	if a == nil || a.UID == "" {
		return SystemActor
	}
	return a.UID
}
