package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/types"
)

// chainHash links an entry body to its predecessor.
func chainHash(prev string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainBreak locates the first entry that fails verification.
type ChainBreak struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	EntryID string `json:"entry_id,omitempty"`
	Reason  string `json:"reason"`
}

// ChainReport is the outcome of VerifyChain.
type ChainReport struct {
	Valid      bool `json:"valid"`
	Entries    int  `json:"entries"`
	Partitions int  `json:"partitions"`
	// Anchor is the prev_hash of the oldest surviving entry. It is empty
	// unless earlier partitions were purged.
	Anchor string      `json:"anchor,omitempty"`
	Break  *ChainBreak `json:"break,omitempty"`
}

// VerifyChain recomputes every entry hash across all partitions and checks
// that each entry points at its predecessor. Appends wait until it finishes.
func (t *Trail) VerifyChain(ctx context.Context) (ChainReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts, err := t.partitions()
	if err != nil {
		return ChainReport{}, err
	}

	report := ChainReport{Valid: true, Partitions: len(parts)}
	prev := ""
	first := true

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		brk, err := verifyPartition(p, &prev, &first, &report)
		if err != nil {
			return report, types.IO(err, "verify %s", p.name)
		}
		if brk != nil {
			report.Valid = false
			report.Break = brk
			t.logger.Warn("audit chain broken",
				zap.String("file", brk.File),
				zap.Int("line", brk.Line),
				zap.String("reason", brk.Reason),
			)
			return report, nil
		}
	}
	return report, nil
}

func verifyPartition(p partition, prev *string, first *bool, report *ChainReport) (*ChainBreak, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return &ChainBreak{File: p.name, Line: lineNo, Reason: "undecodable entry"}, nil
		}
		if *first {
			report.Anchor = rec.PrevHash
			*prev = rec.PrevHash
			*first = false
		}
		if rec.PrevHash != *prev {
			return &ChainBreak{File: p.name, Line: lineNo, EntryID: rec.ID, Reason: "prev_hash does not match preceding entry"}, nil
		}
		want := rec.Hash
		rec.Hash = ""
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		if chainHash(rec.PrevHash, body) != want {
			return &ChainBreak{File: p.name, Line: lineNo, EntryID: rec.ID, Reason: "hash mismatch"}, nil
		}
		*prev = want
		report.Entries++
	}
	return nil, sc.Err()
}
