// Package model defines the domain entities shared across the gateway:
// sources (linked provider accounts), normalized layers, and the typed
// error taxonomy surfaced to API clients.
package model

import (
	"encoding/json"
	"time"
)

// SourceStatus is the connection state of a linked provider account.
type SourceStatus string

const (
	// StatusConnected means the source's credentials are believed valid.
	StatusConnected SourceStatus = "connected"
	// StatusRefreshing means exactly one worker is exchanging the refresh
	// token for a new access token.
	StatusRefreshing SourceStatus = "refreshing"
	// StatusDisconnected means the provider confirmed the credentials are
	// invalid; the user has to re-link the account.
	StatusDisconnected SourceStatus = "disconnected"
)

// Source is a user's linked third-party provider account.
// It is persisted JSON-encoded inside the user's sources hash.
type Source struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"display_name,omitempty"`
	Email        string          `json:"email,omitempty"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Status       SourceStatus    `json:"status"`
	Colors       json.RawMessage `json:"colors,omitempty"`
	CreatedAt    int64           `json:"created_at"`
}

// Profile is the subset of an OAuth provider profile needed to create a
// source. It is supplied by the authentication boundary.
type Profile struct {
	Provider    string
	ID          string
	DisplayName string
	Emails      []string
}

// NewSource builds a connected source from an OAuth profile and its
// credentials.
func NewSource(profile Profile, accessToken, refreshToken string) *Source {
	s := &Source{
		ID:           SourceID(profile.Provider, profile.ID),
		DisplayName:  profile.DisplayName,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Status:       StatusConnected,
		CreatedAt:    time.Now().Unix(),
	}
	if len(profile.Emails) > 0 {
		s.Email = profile.Emails[0]
	}
	return s
}

// ACL describes what the calling user may do with a layer's events.
type ACL struct {
	Edit   bool `json:"edit"`
	Create bool `json:"create"`
	Delete bool `json:"delete"`
}

// Layer is a provider-native calendar, list, board or repository normalized
// to a common shape. Selected is the provider's default; the user's own
// selection (stored per user) overrides it.
type Layer struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color,omitempty"`
	TextColor string `json:"text_color,omitempty"`
	ACL       ACL    `json:"acl"`
	Selected  bool   `json:"selected"`
}
