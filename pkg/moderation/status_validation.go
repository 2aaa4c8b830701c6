package moderation

import "fmt"

// ParseAuthCode parses a wire auth code.
func ParseAuthCode(s string) (AuthCode, error) {
	switch code := AuthCode(s); code {
	case AuthPending, AuthApproved, AuthRejected:
		return code, nil
	default:
		return "", fmt.Errorf("%w: unknown auth code %q", ErrInvalidCode, s)
	}
}

// ParseActionCode parses a wire action code.
func ParseActionCode(s string) (ActionCode, error) {
	switch code := ActionCode(s); code {
	case ActionAdd, ActionEdit, ActionDelete:
		return code, nil
	default:
		return "", fmt.Errorf("%w: unknown action code %q", ErrInvalidCode, s)
	}
}

// parseDecision validates the codes of a decision request. Only approve and
// reject are decisions; an action code, when given, must be valid.
func parseDecision(req DecideRequest) (AuthCode, ActionCode, error) {
	decision, err := ParseAuthCode(req.AuthCode)
	if err != nil {
		return "", "", err
	}
	if decision == AuthPending {
		return "", "", fmt.Errorf("%w: %q is not a decision", ErrInvalidCode, req.AuthCode)
	}
	if req.ActionCode == "" {
		return decision, "", nil
	}
	action, err := ParseActionCode(req.ActionCode)
	if err != nil {
		return "", "", err
	}
	return decision, action, nil
}

// canDecide checks if a proposal can take a decision in its current state.
func canDecide(status AuthCode) (bool, error) {
	switch status {
	case AuthPending:
		return true, nil
	case AuthApproved, AuthRejected:
		return false, fmt.Errorf("%w (auth code: %s)", ErrAlreadyDecided, status)
	default:
		return false, fmt.Errorf("%w: unknown auth code %s", ErrInvalidCode, status)
	}
}

// canSubmit checks that an action is coherent with its target.
func canSubmit(action ActionCode, canonicalID *int64) (bool, error) {
	switch action {
	case ActionAdd:
		if canonicalID != nil {
			return false, fmt.Errorf("%w: add must not target an existing record", ErrBadRequest)
		}
		return true, nil
	case ActionEdit, ActionDelete:
		if canonicalID == nil {
			return false, fmt.Errorf("%w: action %s requires a target record", ErrBadRequest, action)
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown action code %q", ErrInvalidCode, action)
	}
}

// canModify checks that the actor owns the record or is an admin.
func canModify[T any](actor Actor, record *Record[T]) (bool, error) {
	if actor.IsAdmin() || record.CreatedBy == actor.ID {
		return true, nil
	}
	return false, fmt.Errorf("%w: %s is not the owner of record %d", ErrForbidden, actor.ID, record.ID)
}
