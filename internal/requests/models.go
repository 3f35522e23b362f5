// Package requests owns the membership_requests table and the resolution
// engine that drives the invite and join-request lifecycle. A record is
// created PENDING and moves exactly once into a terminal status; the
// transition is guarded by a conditional update so concurrent resolvers
// cannot both win.
package requests

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/members"
)

// RequestType discriminates who initiated the record
type RequestType string

const (
	// TypeInvite is org-initiated: an owner invited a user
	TypeInvite RequestType = "INVITE"
	// TypeRequest is user-initiated: a user asked to join
	TypeRequest RequestType = "REQUEST"
)

// IsValid reports whether t is a known request type
func (t RequestType) IsValid() bool {
	return t == TypeInvite || t == TypeRequest
}

// RequestStatus is the lifecycle state of a membership request
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusDeclined RequestStatus = "DECLINED"
	StatusRejected RequestStatus = "REJECTED"
	StatusRevoked  RequestStatus = "REVOKED"
)

// IsValid reports whether s is a known status
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusRejected, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state. Terminal records never
// change again; they are kept for history until the retention job prunes them.
func (s RequestStatus) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

// ParseStatus converts external input into a RequestStatus
func ParseStatus(s string) (RequestStatus, error) {
	status := RequestStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

var (
	// ErrRequestNotFound is returned when a membership request does not exist
	ErrRequestNotFound = errors.New("membership request not found")

	// ErrNotPending is returned when resolving a request that already
	// reached a terminal status
	ErrNotPending = errors.New("membership request is not pending")

	// ErrWrongType is returned when an invite operation targets a join
	// request or vice versa
	ErrWrongType = errors.New("membership request has a different type")

	// ErrNotAddressee is returned when a user acts on an invite that was
	// sent to someone else, or on a join request they did not file
	ErrNotAddressee = errors.New("membership request is not addressed to this user")

	// ErrInvalidStatus is returned when a status string is not a known status
	ErrInvalidStatus = errors.New("invalid request status")

	// ErrPendingInviteExists is returned when the (org, user) pair already
	// has a pending invite
	ErrPendingInviteExists = errors.New("user already has a pending invite")

	// ErrPendingRequestExists is returned when the (org, user) pair already
	// has a pending join request
	ErrPendingRequestExists = errors.New("user already has a pending join request")

	// ErrInviteAwaitsUser is returned when a user files a join request while
	// holding a pending invite to the same org; they should resolve the
	// invite instead
	ErrInviteAwaitsUser = errors.New("a pending invite to this organization awaits your response")
)

// MembershipRequest is one row of the membership_requests table. For an
// INVITE, InvitedUserID and InvitedBy are set; for a REQUEST, RequesterID is.
type MembershipRequest struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	OrgID         uuid.UUID     `db:"org_id" json:"org_id"`
	Type          RequestType   `db:"type" json:"type"`
	InvitedUserID *uuid.UUID    `db:"invited_user_id" json:"invited_user_id,omitempty"`
	InvitedBy     *uuid.UUID    `db:"invited_by" json:"invited_by,omitempty"`
	RequesterID   *uuid.UUID    `db:"requester_id" json:"requester_id,omitempty"`
	Role          members.Role  `db:"role" json:"role"`
	Status        RequestStatus `db:"status" json:"status"`
	Message       *string       `db:"message" json:"message,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
	ResolvedAt    *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID    `db:"resolved_by" json:"resolved_by,omitempty"`
}

// SubjectUserID returns the user the record is about: the invited user for
// an invite, the requester for a join request.
func (m *MembershipRequest) SubjectUserID() uuid.UUID {
	if m.Type == TypeInvite && m.InvitedUserID != nil {
		return *m.InvitedUserID
	}
	if m.RequesterID != nil {
		return *m.RequesterID
	}
	return uuid.Nil
}

// RequestWithDetails is a membership request enriched with display fields
// for the org and the subject user, as served by the list endpoints
type RequestWithDetails struct {
	MembershipRequest
	OrgName      string `db:"org_name" json:"org_name"`
	OrgSlug      string `db:"org_slug" json:"org_slug"`
	SubjectName  string `db:"subject_name" json:"subject_name"`
	SubjectEmail string `db:"subject_email" json:"subject_email"`
}
