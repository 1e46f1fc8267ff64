package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/artifactflow/types"
)

// ArtifactType defines the type of artifact.
type ArtifactType string

const (
	TypeVideoRaw          ArtifactType = "video_raw"
	TypeVideoKeypoints    ArtifactType = "video_keypoints"
	TypeVideoDeID         ArtifactType = "video_deid"
	TypeAudioRaw          ArtifactType = "audio_raw"
	TypeAudioTranscript   ArtifactType = "audio_transcript"
	TypeAudioPHIIntervals ArtifactType = "audio_phi_intervals"
	TypeAudioDeID         ArtifactType = "audio_deid"
	TypeTextRaw           ArtifactType = "text_raw"
	TypeTextDeID          ArtifactType = "text_deid"
	TypeMetadata          ArtifactType = "metadata"
	TypeLog               ArtifactType = "log"
)

var allTypes = []ArtifactType{
	TypeVideoRaw,
	TypeVideoKeypoints,
	TypeVideoDeID,
	TypeAudioRaw,
	TypeAudioTranscript,
	TypeAudioPHIIntervals,
	TypeAudioDeID,
	TypeTextRaw,
	TypeTextDeID,
	TypeMetadata,
	TypeLog,
}

// AllArtifactTypes returns every recognized type in a stable order.
func AllArtifactTypes() []ArtifactType {
	out := make([]ArtifactType, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports enumeration membership.
func (t ArtifactType) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseArtifactType accepts either the wire value ("video_raw") or the
// upper-case name ("VIDEO_RAW").
func ParseArtifactType(s string) (ArtifactType, error) {
	t := ArtifactType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", types.Validation("unrecognized artifact type %q", s)
	}
	return t, nil
}

// ArtifactStatus represents the lifecycle status of an artifact.
type ArtifactStatus string

const (
	StatusPending    ArtifactStatus = "pending"
	StatusInProgress ArtifactStatus = "in_progress"
	StatusCompleted  ArtifactStatus = "completed"
	StatusFailed     ArtifactStatus = "failed"
)

var allStatuses = []ArtifactStatus{StatusPending, StatusInProgress, StatusCompleted, StatusFailed}

// AllStatuses returns every lifecycle status in state-machine order.
func AllStatuses() []ArtifactStatus {
	out := make([]ArtifactStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports enumeration membership.
func (s ArtifactStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s ArtifactStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseArtifactStatus accepts either the wire value or the upper-case name.
func ParseArtifactStatus(s string) (ArtifactStatus, error) {
	st := ArtifactStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", types.Validation("unrecognized artifact status %q", s)
	}
	return st, nil
}

// transitions lists the forward edges of the lifecycle.
// pending -> failed is allowed: a stage can fail before it starts work.
var transitions = map[ArtifactStatus][]ArtifactStatus{
	StatusPending:    {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to ArtifactStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Artifact represents a tracked, identity-bearing output of a processing stage.
// Its JSON form is the metadata document persisted under metadata/<id>.json.
type Artifact struct {
	ID                string              `json:"artifact_id"`
	Type              ArtifactType        `json:"artifact_type"`
	Status            ArtifactStatus      `json:"status"`
	Checksum          string              `json:"checksum,omitempty"`
	FilePath          string              `json:"file_path,omitempty"`
	FileSize          int64               `json:"file_size,omitempty"`
	SourceArtifacts   []string            `json:"source_artifacts"`
	Relationships     map[string][]string `json:"relationships,omitempty"`
	ProcessingModule  string              `json:"processing_module,omitempty"`
	ProcessingVersion string              `json:"processing_version,omitempty"`
	RunID             string              `json:"run_id,omitempty"`
	Metadata          map[string]any      `json:"metadata"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	ErrorMessage      string              `json:"error_message,omitempty"`
}

// HasFile reports whether the artifact has a backing payload.
func (a *Artifact) HasFile() bool {
	return a.FilePath != ""
}

// HasSource reports whether id is already a direct source.
func (a *Artifact) HasSource(id string) bool {
	for _, s := range a.SourceArtifacts {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Metadata values are copied through JSON so nested
// maps and slices are not shared with the index.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.SourceArtifacts = copyIDs(a.SourceArtifacts)
	if a.Relationships != nil {
		c.Relationships = make(map[string][]string, len(a.Relationships))
		for k, v := range a.Relationships {
			c.Relationships[k] = append([]string(nil), v...)
		}
	}
	c.Metadata = cloneMetadata(a.Metadata)
	return &c
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		// Values that do not serialize are copied shallowly.
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return m
	}
	return out
}

// ValidateMetadata checks that metadata is JSON-serializable.
func ValidateMetadata(m map[string]any) error {
	if _, err := json.Marshal(m); err != nil {
		return types.Validation("metadata is not JSON-serializable").WithCause(err)
	}
	return nil
}

// String is used in log lines.
func (a *Artifact) String() string {
	return fmt.Sprintf("%s(%s,%s)", a.ID, a.Type, a.Status)
}
