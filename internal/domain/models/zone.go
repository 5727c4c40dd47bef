package models

import "time"

// Zone is a composite of concurrently live pools whose price ranges intersect.
// Member pools are referenced by id only.
//
// ID is the hash of the founding member set and stays fixed for the zone's
// life, so ZoneUpdated events can be joined on it. MemberKey is the same hash
// over the current members and changes when a member leaves.
type Zone struct {
	ID            string       `json:"zone_id"`
	MemberKey     string       `json:"member_key"`
	Side          Side         `json:"side"`
	Top           float64      `json:"top"`
	Bottom        float64      `json:"bottom"`
	Strength      float64      `json:"strength"`
	MemberPoolIDs []string     `json:"member_pool_ids"`
	Resolutions   []Resolution `json:"resolutions"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// MemberCount returns the number of member pools.
func (z Zone) MemberCount() int { return len(z.MemberPoolIDs) }
