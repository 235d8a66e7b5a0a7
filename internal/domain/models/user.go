package models

import "time"

// User is one Discord account that has signed in at least once.
// DiscordID is unique; ID is the internal UUID carried in sessions.
type User struct {
	ID             string     `json:"id"`
	DiscordID      string     `json:"discordId"`
	Username       string     `json:"username"`
	Discriminator  string     `json:"discriminator,omitempty"`
	GlobalName     string     `json:"globalName,omitempty"`
	AvatarURL      string     `json:"avatarUrl,omitempty"`
	Email          string     `json:"email,omitempty"`
	IsServerMember bool       `json:"isServerMember"`
	Roles          []string   `json:"roles"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt time.Time  `json:"-"`
	LastLoginAt    time.Time  `json:"lastLoginAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// DisplayName prefers the Discord global name over the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Clone returns a deep copy.
func (u User) Clone() User {
	u.Roles = append([]string(nil), u.Roles...)
	if u.LeftAt != nil {
		t := *u.LeftAt
		u.LeftAt = &t
	}
	return u
}
