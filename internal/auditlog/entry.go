// Package auditlog records every moderation decision in an append-only,
// hash-chained log so reviewers can prove after the fact which flags were
// raised, merged and disposed of, and by whom.
//
// The chain starts with a genesis record whose Hash equals GenesisHash. Each
// later record stores the hash of its predecessor; Verify walks the chain and
// reports the first inconsistency.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the fixed hash of record 0.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SystemActor is recorded for actions the engine takes on its own.
const SystemActor = "risk-engine"

// Actions written to the log.
const (
	ActionGenesis       = "genesis"
	ActionFlagCreated   = "flag.created"
	ActionFlagMerged    = "flag.merged"
	ActionFlagReviewed  = "flag.reviewed"
	ActionReportFiled   = "report.filed"
	ActionReportUpdated = "report.updated"
)

// Record is one entry of the audit chain.
type Record struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"` // e.g. "ad:42" or "report:7"
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`     // reviewer id or SystemActor
	DataHash  string    `json:"data_hash"` // SHA-256 of the JSON payload
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Log is the append-only audit chain. MemoryLog and PostgresLog implement it.
type Log interface {
	// Append chains a new record; payload is JSON-encoded and only its
	// digest is kept.
	Append(ctx context.Context, subject, action, actor string, payload any) (*Record, error)
	Get(ctx context.Context, index int) (*Record, error)
	// List returns records newest first.
	List(ctx context.Context, offset, limit int) ([]*Record, error)
	// History returns every record of one subject, oldest first: the full
	// moderation trail of a piece of content or a report.
	History(ctx context.Context, subject string) ([]*Record, error)
	Len(ctx context.Context) (int, error)
	Verify(ctx context.Context) error
	Root(ctx context.Context) (string, error)
}

// Subject formats the subject key of a record.
func Subject(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// hashRecord computes the chained digest of a non-genesis record.
func hashRecord(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		r.Index, r.Timestamp.Format(time.RFC3339Nano),
		r.Subject, r.Action, r.Actor, r.DataHash, r.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// checkLink validates curr against its predecessor.
func checkLink(prev, curr *Record) error {
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashRecord(curr) {
		return fmt.Errorf("record %d has invalid hash", curr.Index)
	}
	return nil
}
