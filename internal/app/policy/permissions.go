// Package policy maps Discord role ids to permission tiers. The role
// tables are loaded once from configuration and are the only place the
// mapping lives.
package policy

// Roles holds the configured role ids for each tier.
type Roles struct {
	Owner     []string
	Board     []string
	HeadAdmin []string
	Admin     []string
	HeadMod   []string
	Moderator []string
}

// Permissions is the access derived from a role set.
type Permissions struct {
	IsStaff             bool `json:"isStaff"`
	IsAdmin             bool `json:"isAdmin"`
	IsModerator         bool `json:"isModerator"`
	CanAccessDashboard  bool `json:"canAccessDashboard"`
	CanAccessSanctum    bool `json:"canAccessSanctum"`
	CanAccessThroneRoom bool `json:"canAccessThroneRoom"`
}

// Level is a coarse ranking used by the UI.
type Level string

const (
	LevelGuest     Level = "guest"
	LevelMember    Level = "member"
	LevelModerator Level = "moderator"
	LevelAdmin     Level = "admin"
	LevelOwner     Level = "owner"
)

// Landing pages after sign-in.
const (
	PathThroneRoom = "/throne-room"
	PathSanctum    = "/sanctum"
	PathDashboard  = "/chambers/dashboard"
	PathGateway    = "/gateway"
)

// Resolver answers permission questions for role sets. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	owner     map[string]struct{}
	admin     map[string]struct{}
	moderator map[string]struct{}
}

// NewResolver builds the tier lookup tables. Owner, board, head-admin and
// admin ids form the admin tier; head-mod and moderator ids form the
// moderator tier.
func NewResolver(r Roles) *Resolver {
	return &Resolver{
		owner:     set(r.Owner),
		admin:     set(r.Owner, r.Board, r.HeadAdmin, r.Admin),
		moderator: set(r.HeadMod, r.Moderator),
	}
}

func set(lists ...[]string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, l := range lists {
		for _, id := range l {
			if id != "" {
				m[id] = struct{}{}
			}
		}
	}
	return m
}

func hasAny(roles []string, tier map[string]struct{}) bool {
	for _, r := range roles {
		if _, ok := tier[r]; ok {
			return true
		}
	}
	return false
}

// Resolve is a pure function of roles. Every authenticated user can reach
// the dashboard.
func (p *Resolver) Resolve(roles []string) Permissions {
	isAdmin := hasAny(roles, p.admin)
	isMod := hasAny(roles, p.moderator)
	staff := isAdmin || isMod
	return Permissions{
		IsStaff:             staff,
		IsAdmin:             isAdmin,
		IsModerator:         isMod,
		CanAccessDashboard:  true,
		CanAccessSanctum:    staff,
		CanAccessThroneRoom: isAdmin,
	}
}

// Level ranks a user. Non-members with no staff role are guests.
func (p *Resolver) Level(roles []string, isMember bool) Level {
	switch {
	case hasAny(roles, p.owner):
		return LevelOwner
	case hasAny(roles, p.admin):
		return LevelAdmin
	case hasAny(roles, p.moderator):
		return LevelModerator
	case isMember:
		return LevelMember
	default:
		return LevelGuest
	}
}

// LandingPath picks the post-login destination. The admin tier wins over
// the moderator tier.
func LandingPath(perms Permissions) string {
	switch {
	case perms.IsAdmin:
		return PathThroneRoom
	case perms.IsModerator:
		return PathSanctum
	default:
		return PathDashboard
	}
}

// GatewayPath is where failed sign-ins land.
func GatewayPath(code string) string {
	return PathGateway + "?error=" + code
}
