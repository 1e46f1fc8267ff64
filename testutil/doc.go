/*
Package testutil 提供 ArtifactFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext
  - 可控时钟: Clock，注入 Manager 与审计日志以驱动保留期与清理测试
  - 断言工具: AssertErrorCode / AssertJSONEqual / AssertFileContent /
    AssertNoFile / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON / CountFiles

# 子包

  - testutil/mocks: MockCatalog，记录目录调用并支持错误注入
  - testutil/fixtures: 源文件载荷、校验和与预置制品血缘

# 使用示例

	clock := testutil.NewClock(testutil.DefaultTime)
	src := fixtures.WritePayload(t, t.TempDir(), "session.mp4", fixtures.SessionVideo)
	_, err := m.CreateArtifact(ctx, manager.CreateRequest{Type: artifact.TypeVideoRaw, SourcePath: src})
	testutil.AssertErrorCode(t, err, types.ErrNotFound)
*/
package testutil
