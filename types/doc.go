// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供制品存储的全局共享错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。artifact、storage、audit、
manager 与运维端点共用同一套错误码，调用方据此区分"未找到"、
"参数非法"、"非法状态迁移"、"路径越界"、"I/O 失败"与"审计写入失败"。

# 核心类型

  - ErrorCode：错误码枚举（NOT_FOUND、VALIDATION、INVALID_TRANSITION、
    PATH_SECURITY、IO_ERROR、AUDIT_WRITE_FAILURE）。
  - Error：结构化错误，携带错误码、消息、相关制品 ID 与底层原因。

# 主要能力

  - 构造函数：NotFound / Validation / InvalidTransition / PathSecurity /
    IO / AuditWriteFailure。
  - 错误检查：GetErrorCode 取链上第一个错误码，IsCode 沿 Cause 链
    逐层匹配，errors.Is 按错误码比较。
*/
package types
