package user

import (
	"regexp"
	"time"
)

// Role tags a participant with the handler set that serves them.
type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
	RoleManager    Role = "manager"
	RoleOwner      Role = "owner"
)

// Status is the participant lifecycle. Participants are never deleted,
// deactivation flips the status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// NicknameRe is the accepted messaging-channel nickname shape.
var NicknameRe = regexp.MustCompile(`^\w{5,32}$`)

// User mirrors the bot_users table. ChatID is set on first contact and
// re-synchronized when it drifts. BotState is the persisted conversation
// state label; nil means the initial state.
type User struct {
	ID        string
	Nickname  string
	Role      Role
	Status    Status
	ChatID    *int64
	BotState  *string
	TariffID  *string
	Paid      bool
	CreatedAt time.Time
}

func (u *User) StateLabel() string {
	if u.BotState == nil {
		return ""
	}
	return *u.BotState
}

func ValidRole(r Role) bool {
	switch r {
	case RoleClient, RoleContractor, RoleManager, RoleOwner:
		return true
	default:
		return false
	}
}
