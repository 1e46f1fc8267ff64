// Copyright (c) ArtifactFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供制品存储运维 HTTP 端点及其生命周期管理。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播，
支持明文与 TLS 两种启动模式。NewHandler 构建运维路由，Verifier
在后台周期性执行全量完整性校验，结果通过 /readyz 暴露。

制品存储本身是嵌入式库，所有读写都经由进程内的 manager.Manager。
本包只是可选的只读运维面：不提供任何写入或制品下载接口，仅由
artifactctl serve 显式启用，库的使用方无需引入。

# 路由

  - GET /healthz：存活探针，始终返回 healthy。
  - GET /readyz：执行注册的就绪检查（如目录数据库 Ping），并附带
    最近一次完整性校验摘要。检查失败返回 503，校验发现问题时状态
    为 degraded。
  - GET /stats：制品、运行、存储与审计统计（JSON）。
  - GET /metrics：Prometheus 指标。

# 中间件

所有路由经过 Recovery、RequestID 与 RequestLogger。请求 ID 沿用
X-Request-ID 请求头，缺省时生成，并写入请求上下文。
*/
package server
