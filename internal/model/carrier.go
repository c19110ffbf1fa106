package model

import "time"

// Carrier is a trucking company identified by its MC number. It lives for
// the duration of a call.
type Carrier struct {
	MCNumber   string    `json:"mc_number"`
	Verified   bool      `json:"verified"`
	VerifiedAt time.Time `json:"verified_at"`
}
