package transaction

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags why a staging operation was refused.
type Kind int

const (
	KindEmpty Kind = iota + 1
	KindIllegalRoster
	KindNoOp
	KindDuplicatePlayer
	KindNotParticipant
	KindAlreadyParticipant
	KindHasMoves
	KindWrongOrganization
	KindFreeAgent
	KindMoveNotFound
	KindInvalidState
	KindUnbalanced
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindIllegalRoster:
		return "illegal_roster"
	case KindNoOp:
		return "no_op"
	case KindDuplicatePlayer:
		return "duplicate_player"
	case KindNotParticipant:
		return "not_participant"
	case KindAlreadyParticipant:
		return "already_participant"
	case KindHasMoves:
		return "has_moves"
	case KindWrongOrganization:
		return "wrong_organization"
	case KindFreeAgent:
		return "free_agent"
	case KindMoveNotFound:
		return "move_not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindUnbalanced:
		return "unbalanced"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rejection is an expected refusal the caller should show to the GM, as
// opposed to an infrastructure failure.
type Rejection struct {
	Kind   Kind
	Reason string
	Errors []string
}

func Reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...), Errors: []string{}}
}

func (r *Rejection) Error() string {
	if len(r.Errors) == 0 {
		return r.Reason
	}
	return r.Reason + ": " + strings.Join(r.Errors, "; ")
}

// KindOf reports the rejection kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind, true
	}
	return 0, false
}

func IsRejection(err error) bool {
	_, ok := KindOf(err)
	return ok
}
