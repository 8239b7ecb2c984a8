package service

import "errors"

// Common service errors
var (
	ErrNotLeader = errors.New("caller is not the party leader")
	ErrNotMember = errors.New("caller is not a member of this party")
)

// Party service specific errors
var (
	ErrPartyNotFound      = errors.New("party not found")
	ErrAlreadyInParty     = errors.New("user already belongs to a party")
	ErrPartyFull          = errors.New("party is full")
	ErrLeaderNotReady     = errors.New("leader readiness is implicit and cannot be toggled")
	ErrInvalidRole        = errors.New("unknown role")
	ErrDualRoleNotAllowed = errors.New("one member cannot hold both roles")
)

// Queue service specific errors
var (
	ErrInvalidPartySize         = errors.New("party size not valid for this queue")
	ErrAlreadyQueued            = errors.New("party already has an active queue entry")
	ErrIncompletePartyForRanked = errors.New("ranked queue requires a full party")
	ErrMembersNotReady          = errors.New("all members must be ready")
	ErrInvalidMatchType         = errors.New("unknown match type")
)

// Role resolver specific errors
var (
	ErrTeamNotFound     = errors.New("assembled team not found")
	ErrTeamDissolved    = errors.New("a contributing party left the team before confirmation")
	ErrRolesIncomplete  = errors.New("both IGL and anchor must be set before confirmation")
	ErrAlreadyConfirmed = errors.New("team roles already confirmed")
	ErrNotPickAuthority = errors.New("only the original party leader may pick roles for this team")
)

// Match service specific errors
var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrInvalidDifficulty = errors.New("unknown difficulty")
	ErrRolesNotAssigned  = errors.New("IGL and anchor must be assigned before an AI match")
)
