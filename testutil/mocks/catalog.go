// MockCatalog 是制品目录的测试模拟实现。
//
// 记录每次调用，并支持错误注入。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/artifactflow/artifact"
)

// --- MockCatalog 结构 ---

// MockCatalog 在内存中保存 upsert 的制品与运行
type MockCatalog struct {
	mu sync.RWMutex

	artifacts map[string]*artifact.Artifact
	runs      map[string]*artifact.ProcessingRun

	// 调用记录
	calls []MockCatalogCall

	// 行为控制
	err    error
	closed bool
}

// MockCatalogCall 记录单次调用
type MockCatalogCall struct {
	Method string
	ID     string
	Error  error
}

// NewMockCatalog 创建新的 MockCatalog
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		artifacts: make(map[string]*artifact.Artifact),
		runs:      make(map[string]*artifact.ProcessingRun),
	}
}

// WithError 让后续所有写入返回 err
func (m *MockCatalog) WithError(err error) *MockCatalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// --- 接口实现 ---

// UpsertArtifact 保存制品副本
func (m *MockCatalog) UpsertArtifact(ctx context.Context, a *artifact.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCatalogCall{Method: "UpsertArtifact", ID: a.ID, Error: m.err})
	if m.err != nil {
		return m.err
	}
	m.artifacts[a.ID] = a.Clone()
	return nil
}

// DeleteArtifact 删除制品
func (m *MockCatalog) DeleteArtifact(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCatalogCall{Method: "DeleteArtifact", ID: id, Error: m.err})
	if m.err != nil {
		return m.err
	}
	delete(m.artifacts, id)
	return nil
}

// UpsertRun 保存运行副本
func (m *MockCatalog) UpsertRun(ctx context.Context, r *artifact.ProcessingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCatalogCall{Method: "UpsertRun", ID: r.ID, Error: m.err})
	if m.err != nil {
		return m.err
	}
	m.runs[r.ID] = r.Clone()
	return nil
}

// Close 标记关闭
func (m *MockCatalog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// --- 断言辅助 ---

// Artifact 返回目录中的制品
func (m *MockCatalog) Artifact(id string) (*artifact.Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	return a, ok
}

// Run 返回目录中的运行
func (m *MockCatalog) Run(id string) (*artifact.ProcessingRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}

// ArtifactCount 返回目录中的制品数量
func (m *MockCatalog) ArtifactCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}

// Calls 返回调用记录副本
func (m *MockCatalog) Calls() []MockCatalogCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockCatalogCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Closed 报告是否已关闭
func (m *MockCatalog) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
