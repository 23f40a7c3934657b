package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ChangeType enumerates the audit event kinds recorded per command outcome
// (spec.md §3).
type ChangeType int8

const (
	ChangeCreate ChangeType = iota
	ChangeUpdate
	ChangeDelete
	ChangeAdd
	ChangeRemove
	ChangeGrant
	ChangeRevoke
	ChangeCheck
	ChangeError
)

// String implements fmt.Stringer.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreate:
		return "Create"
	case ChangeUpdate:
		return "Update"
	case ChangeDelete:
		return "Delete"
	case ChangeAdd:
		return "Add"
	case ChangeRemove:
		return "Remove"
	case ChangeGrant:
		return "Grant"
	case ChangeRevoke:
		return "Revoke"
	case ChangeCheck:
		return "Check"
	case ChangeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// AuditRecord is an immutable, append-only event record (spec.md §3, §4.4).
// Once written, fields never change; gaps in ID indicate tampering or a
// restore from archive (see the archive package and VerifyChain).
type AuditRecord struct {
	ID         int64
	EntityType string
	EntityID   string
	ChangeType ChangeType
	Actor      string
	Timestamp  time.Time
	Details    string // JSON-encoded payload
	ContentHash string
}

// ComputeHash returns H(id || entity_type || entity_id || change_type ||
// actor || ts_rfc3339 || details) using SHA-256, per spec.md §4.4.
func ComputeHash(r *AuditRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		r.ID, r.EntityType, r.EntityID, r.ChangeType, r.Actor,
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Details)

	return hex.EncodeToString(h.Sum(nil))
}

// Seal computes and stores the content hash on r.
func Seal(r *AuditRecord) {
	r.ContentHash = ComputeHash(r)
}

// Verify reports whether r's stored hash matches its recomputed hash.
func Verify(r *AuditRecord) bool {
	return r.ContentHash == ComputeHash(r)
}
