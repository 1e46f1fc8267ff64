// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
Package manager is the single entry point of the artifact store. It owns the
in-memory artifact index and processing-run state, and keeps storage, the
audit trail and the optional SQL catalog consistent with each other.

Every CreateArtifact, AttachFile, UpdateArtifactStatus and LinkArtifacts call
writes exactly one audit entry, whether it succeeds or fails. Mutations hold
the store-wide write lock for their full duration; reads take the read lock
and hand out deep copies, so callers never observe a half-applied change.

When the audit append itself fails the mutation stays applied and the call
returns the artifact together with an AUDIT_WRITE_FAILURE error.
*/
package manager
