package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/artifactflow/types"
)

func TestParseArtifactType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ArtifactType
		wantErr bool
	}{
		{"wire value", "video_raw", TypeVideoRaw, false},
		{"upper case name", "VIDEO_KEYPOINTS", TypeVideoKeypoints, false},
		{"transcript", "audio_transcript", TypeAudioTranscript, false},
		{"padded", "  log ", TypeLog, false},
		{"unknown", "video_hd", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArtifactType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllArtifactTypes_ReturnsCopy(t *testing.T) {
	all := AllArtifactTypes()
	require.Len(t, all, 11)
	all[0] = "mutated"
	assert.Equal(t, TypeVideoRaw, AllArtifactTypes()[0])
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ArtifactStatus
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, false},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusInProgress, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestArtifactStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())

	_, err := ParseArtifactStatus("archived")
	assert.Error(t, err)
}

func TestArtifact_CloneIsDeep(t *testing.T) {
	a := &Artifact{
		ID:              "a1",
		Type:            TypeVideoRaw,
		SourceArtifacts: []string{"s1"},
		Relationships:   map[string][]string{"derived_from": {"s1"}},
		Metadata: map[string]any{
			"fps":    30,
			"params": map[string]any{"blur": "gaussian"},
		},
	}

	c := a.Clone()
	c.SourceArtifacts[0] = "changed"
	c.Relationships["derived_from"][0] = "changed"
	c.Metadata["params"].(map[string]any)["blur"] = "box"

	assert.Equal(t, "s1", a.SourceArtifacts[0])
	assert.Equal(t, "s1", a.Relationships["derived_from"][0])
	assert.Equal(t, "gaussian", a.Metadata["params"].(map[string]any)["blur"])
	assert.Nil(t, (*Artifact)(nil).Clone())
}

func TestValidateMetadata(t *testing.T) {
	assert.NoError(t, ValidateMetadata(map[string]any{"frames": 120, "codec": "h264"}))

	err := ValidateMetadata(map[string]any{"callback": func() {}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrValidation))
}
