package websocket

import (
	"context"
	"fmt"

	"food-search-be/pkg/store"
)

// Reason records why an ownership check passed or failed, for audit logs.
type Reason string

const (
	ReasonValidationDisabled Reason = "validation_disabled"
	ReasonRequestNotFound    Reason = "request_not_found"
	ReasonUnownedRequest     Reason = "unowned_request"
	ReasonOwnerMatch         Reason = "owner_match"
	ReasonIdentityMissing    Reason = "identity_missing"
	ReasonOwnerMismatch      Reason = "owner_mismatch"
)

// Identity is what a subscriber presents: a session id, a user id from a
// verified token, or both.
type Identity struct {
	SessionID string
	UserID    string
}

func (i Identity) Empty() bool {
	return i.SessionID == "" && i.UserID == ""
}

type Validation struct {
	Allowed bool
	Reason  Reason
}

// OwnershipValidator checks a subscriber against the owner recorded on the
// request. With no store configured every check passes with
// ReasonValidationDisabled.
type OwnershipValidator struct {
	store store.Store
}

func NewOwnershipValidator(s store.Store) *OwnershipValidator {
	return &OwnershipValidator{store: s}
}

// Validate decides whether id may observe requestID. A request that does not
// exist yet is allowed (clients may subscribe before starting the search it
// names); the reason code keeps that visible.
func (v *OwnershipValidator) Validate(ctx context.Context, requestID string, id Identity) (Validation, error) {
	if v == nil || v.store == nil {
		return Validation{Allowed: true, Reason: ReasonValidationDisabled}, nil
	}

	state, ok, err := v.store.Get(ctx, requestID)
	if err != nil {
		return Validation{}, fmt.Errorf("ownership lookup %s: %w", requestID, err)
	}
	if !ok {
		return Validation{Allowed: true, Reason: ReasonRequestNotFound}, nil
	}
	return Check(state, id), nil
}

// Check applies the ownership rule to a loaded state.
func Check(state *store.RequestState, id Identity) Validation {
	if state.SessionID == "" && state.UserID == "" {
		return Validation{Allowed: true, Reason: ReasonUnownedRequest}
	}
	if id.Empty() {
		return Validation{Allowed: false, Reason: ReasonIdentityMissing}
	}
	if state.UserID != "" && id.UserID == state.UserID {
		return Validation{Allowed: true, Reason: ReasonOwnerMatch}
	}
	if state.SessionID != "" && id.SessionID == state.SessionID {
		return Validation{Allowed: true, Reason: ReasonOwnerMatch}
	}
	return Validation{Allowed: false, Reason: ReasonOwnerMismatch}
}
