/*
notify.go - External collaborator interfaces: notifications and audit

PURPOSE:
  The engine describes claim state changes; delivery belongs to external
  systems. Both sinks are fire-and-forget: the engine never blocks a claim
  transition on delivery, and delivery failure never rolls a transition back.
  Emission happens AFTER the storage transaction commits.

IMPLEMENTATIONS:
  LogNotifier/LogAuditSink write to the process log (default wiring).
  NopNotifier/NopAuditSink discard everything (tests).
  Production would adapt these to a push/email gateway and a compliance log.
*/
package welfare

import (
	"context"
	"log"
)

// =============================================================================
// NOTIFICATION SINK
// =============================================================================

type NotificationType string

const (
	NotifyClaimSubmitted     NotificationType = "claim_submitted"
	NotifyClaimAdminApproved NotificationType = "claim_admin_approved"
	NotifyClaimCompleted     NotificationType = "claim_completed"
	NotifyClaimRejected      NotificationType = "claim_rejected"
	NotifyReviewerComment    NotificationType = "reviewer_comment"
)

// Notification describes a claim state change for the claimant.
type Notification struct {
	ClaimantID ClaimantID
	Type       NotificationType
	Title      string
	Message    string
	ClaimID    ClaimID
}

// Notifier delivers notifications. Fire-and-forget; no acknowledgement.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	log.Printf("notify claimant=%s type=%s claim=%s: %s", n.ClaimantID, n.Type, n.ClaimID, n.Title)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// =============================================================================
// AUDIT SINK
// =============================================================================

// AuditEvent records who did what to which entity, for compliance logging.
// The persistence format is the sink's concern, not the engine's.
type AuditEvent struct {
	Action     string // e.g. "claim.submit", "claim.manager_approve"
	EntityType string // "claim", "program", ...
	EntityID   string
	ActorID    string
}

type AuditSink interface {
	Record(ctx context.Context, e AuditEvent)
}

type LogAuditSink struct{}

func (LogAuditSink) Record(_ context.Context, e AuditEvent) {
	log.Printf("audit action=%s %s=%s actor=%s", e.Action, e.EntityType, e.EntityID, e.ActorID)
}

type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEvent) {}
