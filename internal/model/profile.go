package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Profile is the per-actor user document in the remote store. It carries
// the authoritative trial counter for authenticated actors.
type Profile struct {
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	PhotoURL       string    `json:"photo_url,omitempty"`
	IsPro          bool      `json:"is_pro"`
	FreeTrialCount int       `json:"free_trial_count"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	LastSignIn     time.Time `json:"last_sign_in,omitempty"`
}

// DecodeProfile decodes a remote profile document.
func DecodeProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.FreeTrialCount < 0 {
		return nil, fmt.Errorf("decode profile: negative trial count %d", p.FreeTrialCount)
	}
	return &p, nil
}

// Merge overlays non-zero fields from other onto p, matching the remote
// store's merge-upsert semantics.
func (p *Profile) Merge(other Profile) {
	if other.Email != "" {
		p.Email = other.Email
	}
	if other.DisplayName != "" {
		p.DisplayName = other.DisplayName
	}
	if other.PhotoURL != "" {
		p.PhotoURL = other.PhotoURL
	}
	if other.IsPro {
		p.IsPro = true
	}
	if other.FreeTrialCount > p.FreeTrialCount {
		p.FreeTrialCount = other.FreeTrialCount
	}
	if !other.CreatedAt.IsZero() {
		p.CreatedAt = other.CreatedAt
	}
	if !other.LastSignIn.IsZero() {
		p.LastSignIn = other.LastSignIn
	}
}
