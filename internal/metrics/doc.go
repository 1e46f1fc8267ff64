// 版权所有 2024 ArtifactFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的制品存储指标采集能力，覆盖
制品操作、审计、完整性校验、清理与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
nil Collector 可以安全调用，所有方法均为空操作。

# 主要能力

  - 制品操作：操作总数与耗时（按 operation/status 分组）、写入字节数、
    状态转换计数、索引中的制品数量。
  - 审计：条目计数（按 operation/success 分组）与写入失败计数。
  - 完整性：校验结果计数（ok/mismatch/missing/error）。
  - 清理：removed/skipped 计数。
  - 数据库：目录库活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
