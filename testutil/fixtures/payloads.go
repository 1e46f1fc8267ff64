// =============================================================================
// 📦 测试数据工厂 - 制品载荷
// =============================================================================
// 提供预置的源文件与制品样例，用于存储与管理器测试
// =============================================================================
package fixtures

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/artifactflow/artifact"
)

// =============================================================================
// 📄 源文件工厂
// =============================================================================

// SessionVideo 是 10 字节的原始视频载荷
var SessionVideo = []byte("0123456789")

// Transcript 是简短的转写文本载荷
var Transcript = []byte("patient reports mild discomfort\n")

// WritePayload 在 dir 下写入 name 文件并返回其路径
func WritePayload(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write payload %s: %v", path, err)
	}
	return path
}

// Checksum 返回 data 的小写十六进制 SHA-256
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// 🧬 制品工厂
// =============================================================================

// FixedTime 是样例数据使用的固定时间
var FixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// RawVideo 返回一个已完成的原始视频制品
func RawVideo(id string) *artifact.Artifact {
	return &artifact.Artifact{
		ID:                id,
		Type:              artifact.TypeVideoRaw,
		Status:            artifact.StatusCompleted,
		Checksum:          Checksum(SessionVideo),
		FilePath:          "artifacts/video_raw/" + id + "_session.mp4",
		FileSize:          int64(len(SessionVideo)),
		SourceArtifacts:   []string{},
		ProcessingModule:  "ingest",
		ProcessingVersion: "1.0.0",
		Metadata:          map[string]any{"fps": 30},
		CreatedAt:         FixedTime,
		UpdatedAt:         FixedTime,
	}
}

// Derived 返回一个由 sources 派生的待处理制品
func Derived(id string, t artifact.ArtifactType, sources ...string) *artifact.Artifact {
	if sources == nil {
		sources = []string{}
	}
	return &artifact.Artifact{
		ID:               id,
		Type:             t,
		Status:           artifact.StatusPending,
		SourceArtifacts:  sources,
		ProcessingModule: "deid",
		Metadata:         map[string]any{},
		CreatedAt:        FixedTime,
		UpdatedAt:        FixedTime,
	}
}

// Chain 返回 raw -> keypoints -> deid 三级血缘的制品
func Chain() []*artifact.Artifact {
	return []*artifact.Artifact{
		RawVideo("raw"),
		Derived("kp", artifact.TypeVideoKeypoints, "raw"),
		Derived("deid", artifact.TypeVideoDeID, "kp"),
	}
}
