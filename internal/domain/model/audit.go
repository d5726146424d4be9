package model

import "time"

// AuditAction names an administrative action.
type AuditAction string

const (
	AuditPolicyUpdated AuditAction = "policy_updated"
	AuditSessionUnlock AuditAction = "session_unlocked"
	AuditSessionLock   AuditAction = "session_locked"
	AuditUnlockFailed  AuditAction = "unlock_failed"
	AuditScanTriggered AuditAction = "scan_triggered"
	AuditRecordForced  AuditAction = "record_triggered"
	AuditVaultInit     AuditAction = "vault_initialized"
	AuditVaultRotated  AuditAction = "vault_rotated"
)

// AuditEvent is an append-only record of an administrative action.
type AuditEvent struct {
	ID     string
	Action AuditAction
	Actor  string
	Detail string
	At     time.Time
}
