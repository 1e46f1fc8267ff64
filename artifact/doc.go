// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
Package artifact defines the data model of the artifact store: the tracked
outputs of a media de-identification pipeline, their lifecycle, and their
provenance.

# Core types

  - Artifact: one tracked output with a durable id, SHA-256 checksum,
    producer identity, open metadata and its source_artifacts lineage
  - ArtifactType: closed enumeration of pipeline outputs (video_raw,
    video_keypoints, audio_transcript, text_deid, ...)
  - ArtifactStatus: pending -> in_progress -> completed | failed,
    checked by CanTransition
  - ProcessingRun: groups artifact operations of one pipeline execution
  - Lineage: upstream provenance tree plus flattened ancestor list

# Invariants

Artifact ids are never reused. source_artifacts forms a DAG; callers check
WouldIntroduceCycle before accepting new edges. Completed and failed
artifacts never change status again; they are only removed by cleanup.

Persistence lives in artifact/storage, history in artifact/audit and the
orchestration in artifact/manager.
*/
package artifact
