package session

import "github.com/dmitrijs2005/gophadmin/internal/client/models"

// Phase is the authentication state of a session.
type Phase int

const (
	// PhaseInitializing holds until Init has reconciled the token store.
	PhaseInitializing Phase = iota
	PhaseUnauthenticated
	PhasePendingVerification
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhasePendingVerification:
		return "pending_verification"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// UserLoading tracks the identity bootstrap.
type UserLoading int

const (
	LoadingUnknown UserLoading = iota
	LoadingInProgress
	LoadingDone
)

func (l UserLoading) String() string {
	switch l {
	case LoadingInProgress:
		return "in_progress"
	case LoadingDone:
		return "done"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. Identity is shared with the manager
// and must be treated as read-only.
type State struct {
	Phase       Phase
	Identity    *models.Identity
	UserLoading UserLoading
	// Busy is set while a phase-changing call waits on the network.
	Busy bool
	// Err is the last failure, cleared when the next call starts.
	Err *Error
}
