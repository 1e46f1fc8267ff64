// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
Package storage is the file backend of the artifact store.

Layout under the storage root:

	artifacts/<artifact_type>/<artifact_id>_<sanitized name>
	metadata/<artifact_id>.json
	runs/<run_id>.json
	temp/
	.trash/

Payloads are written to temp/ first and renamed into place, so a crash never
leaves a partial file under artifacts/. Every caller-supplied path is
confined to the storage root; symlinked sources are followed only into the
configured AllowedSourceRoots.
*/
package storage
