package models

import "time"

// Follow is the single authoritative follow edge. The followers and following
// lists of a User are views over the set of edges.
type Follow struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}
