package audit

import (
	"encoding/json"
	"time"
)

// Operation kinds recorded by the artifact store.
const (
	OpArtifactCreation = "artifact_creation"
	OpFileAttach       = "file_attach"
	OpStatusUpdate     = "status_update"
	OpLink             = "link"
	OpRunStart         = "run_start"
	OpRunEnd           = "run_end"
	OpCleanup          = "cleanup"
	OpIntegrityCheck   = "integrity_check"
	OpExport           = "export"
	OpPurge            = "audit_purge"
)

// Entry is one immutable record of an operation attempt.
type Entry struct {
	ID         string         `json:"entry_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation"`
	Action     string         `json:"action,omitempty"`
	ArtifactID string         `json:"artifact_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	User       string         `json:"user,omitempty"`
	Module     string         `json:"module,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	PrevHash   string         `json:"prev_hash"`
	Hash       string         `json:"hash"`
}

// record is the on-disk form. Details stay raw so that re-encoding a parsed
// line reproduces the exact bytes that were hashed.
type record struct {
	ID         string          `json:"entry_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Operation  string          `json:"operation"`
	Action     string          `json:"action,omitempty"`
	ArtifactID string          `json:"artifact_id,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	User       string          `json:"user,omitempty"`
	Module     string          `json:"module,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

func (e Entry) toRecord() (record, error) {
	r := record{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Operation:  e.Operation,
		Action:     e.Action,
		ArtifactID: e.ArtifactID,
		RunID:      e.RunID,
		User:       e.User,
		Module:     e.Module,
		Success:    e.Success,
		Error:      e.Error,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
	}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return record{}, err
		}
		r.Details = raw
	}
	return r, nil
}

func (r record) toEntry() (Entry, error) {
	e := Entry{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Operation:  r.Operation,
		Action:     r.Action,
		ArtifactID: r.ArtifactID,
		RunID:      r.RunID,
		User:       r.User,
		Module:     r.Module,
		Success:    r.Success,
		Error:      r.Error,
		PrevHash:   r.PrevHash,
		Hash:       r.Hash,
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &e.Details); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// Filter selects entries. Zero-valued fields match everything.
type Filter struct {
	Operation  string
	Action     string
	ArtifactID string
	RunID      string
	User       string
	Module     string
	Success    *bool
	// Since and Until bound the timestamp inclusively.
	Since time.Time
	Until time.Time
	Limit int
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e Entry) bool {
	switch {
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ArtifactID != "" && e.ArtifactID != f.ArtifactID:
		return false
	case f.RunID != "" && e.RunID != f.RunID:
		return false
	case f.User != "" && e.User != f.User:
		return false
	case f.Module != "" && e.Module != f.Module:
		return false
	case f.Success != nil && e.Success != *f.Success:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Timestamp.After(f.Until):
		return false
	}
	return true
}

// Bool returns a pointer for Filter.Success.
func Bool(v bool) *bool {
	return &v
}
