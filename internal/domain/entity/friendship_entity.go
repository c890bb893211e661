package entity

import "time"

// FriendshipState is derived from the presence of a row and its accepted flag.
type FriendshipState int

const (
	StateNone FriendshipState = iota
	StatePending
	StateAccepted
)

func (s FriendshipState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	default:
		return "none"
	}
}

// Friendship is a directed edge from the requester (FromUserID) to the
// recipient (ToUserID). A pending edge becomes a symmetric friendship once
// Accepted is set; it never goes back.
type Friendship struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	CreatedAt  time.Time
	Accepted   bool
}

// State reports the lifecycle state of f; a nil edge is StateNone.
func (f *Friendship) State() FriendshipState {
	switch {
	case f == nil:
		return StateNone
	case f.Accepted:
		return StateAccepted
	default:
		return StatePending
	}
}

// Involves reports whether userID is either side of the edge.
func (f *Friendship) Involves(userID int64) bool {
	return f.FromUserID == userID || f.ToUserID == userID
}

// Counterpart returns the other participant from userID's point of view.
func (f *Friendship) Counterpart(userID int64) int64 {
	if f.FromUserID == userID {
		return f.ToUserID
	}
	return f.FromUserID
}
