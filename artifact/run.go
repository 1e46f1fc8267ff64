package artifact

import "time"

// RunStatus is the lifecycle of a processing run. Runs reuse the artifact
// status vocabulary: in_progress while active, completed or failed once closed.
type RunStatus = ArtifactStatus

// ProcessingRun groups the artifact operations of one pipeline execution.
type ProcessingRun struct {
	ID              string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at"`
	Status          RunStatus      `json:"final_status"`
	Metadata        map[string]any `json:"metadata"`
	InputArtifacts  []string       `json:"input_artifacts"`
	OutputArtifacts []string       `json:"output_artifacts"`
	ErrorMessages   []string       `json:"error_messages,omitempty"`
}

// Active reports whether the run has not been closed.
func (r *ProcessingRun) Active() bool {
	return r.EndedAt == nil
}

// Duration is measured up to now for an active run.
func (r *ProcessingRun) Duration(now time.Time) time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Clone returns a deep copy.
func (r *ProcessingRun) Clone() *ProcessingRun {
	if r == nil {
		return nil
	}
	c := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	c.Metadata = cloneMetadata(r.Metadata)
	c.InputArtifacts = copyIDs(r.InputArtifacts)
	c.OutputArtifacts = copyIDs(r.OutputArtifacts)
	c.ErrorMessages = append([]string(nil), r.ErrorMessages...)
	return &c
}

// copyIDs keeps empty id lists non-nil so documents carry [] rather than null.
func copyIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
