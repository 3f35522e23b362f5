// Package audit writes append-only audit log entries for security-relevant
// actions. Writes are best-effort: callers log failures and continue, an
// unavailable audit trail must never fail the user-facing operation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EventUserSignup           = "user.signup"
	EventLoginFailed          = "auth.login_failed"
	EventOrgCreated           = "org.created"
	EventInviteCreated        = "membership.invite_created"
	EventInviteRevoked        = "membership.invite_revoked"
	EventInviteAccepted       = "membership.invite_accepted"
	EventInviteDeclined       = "membership.invite_declined"
	EventJoinRequestCreated   = "membership.request_created"
	EventJoinRequestApproved  = "membership.request_approved"
	EventJoinRequestRejected  = "membership.request_rejected"
	EventJoinRequestCancelled = "membership.request_cancelled"
	EventMemberRoleUpdated    = "member.role_updated"
	EventMemberRemoved        = "member.removed"
	EventTaskCreated          = "task.created"
	EventTaskDeleted          = "task.deleted"
)

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OrgID       *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit meta: %w", err)
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (org_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.OrgID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta:        map[string]interface{}{"email": email},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta:   map[string]interface{}{"email": email},
	})
}

func (w *Writer) LogOrgCreated(ctx context.Context, orgID, actorID uuid.UUID, slug string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorID,
		Action:      EventOrgCreated,
		Meta:        map[string]interface{}{"slug": slug},
	})
}

func (w *Writer) LogOrgEvent(ctx context.Context, action string, orgID, actorID uuid.UUID, meta map[string]interface{}) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorID,
		Action:      action,
		Meta:        meta,
	})
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
