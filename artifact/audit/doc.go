// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
Package audit implements the append-only audit trail of the artifact store.

Entries are JSON lines in monthly partitions (audit_<YYYYMM>.jsonl). A
partition is closed at the month boundary or once it would exceed the
configured size; size-rotated files are renamed to audit_<YYYYMM>.<n>.jsonl
with lower n being older. Each entry carries the SHA-256 hash of its
predecessor, and VerifyChain recomputes the chain to detect edits.

Record is the only mutation. Query scans partitions lazily in chronological
order, and Export writes filtered snapshots without touching the live log.
Purge is the sole way to drop history and is itself recorded.
*/
package audit
