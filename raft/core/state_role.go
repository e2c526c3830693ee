package core

// StateRole is the role a node currently plays.
type StateRole int

// Roles. A node starts as follower, campaigns as candidate, and
// serves client requests as leader.
const (
	RoleFollower StateRole = iota
	RoleCandidate
	RoleLeader
)

var stateRoleString = []string{
	"Follower",
	"Candidate",
	"Leader",
}

func (role StateRole) String() string {
	return stateRoleString[role]
}

// IsLeader reports role == RoleLeader.
func (role StateRole) IsLeader() bool {
	return role == RoleLeader
}

// IsCandidate reports role == RoleCandidate.
func (role StateRole) IsCandidate() bool {
	return role == RoleCandidate
}

// IsFollower reports role == RoleFollower.
func (role StateRole) IsFollower() bool {
	return role == RoleFollower
}
