/*
包 migration 管理制品目录（catalog）的 Schema 版本，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

目录库只有两张表：artifacts 镜像制品索引，processing_runs 镜像处理运行。
各方言的 SQL 通过 embed.FS 内嵌，Up/Down/Steps/Goto/Force 提供版本化变更。
目录是索引的派生副本，删库重建后由 Manager 在启动时重新同步。

# 核心类型

  - Migrator / DefaultMigrator：迁移器接口与 golang-migrate 实现。
  - Config：方言、连接 URL、版本表名与锁超时。
  - CLI：artifactctl migrate 子命令使用的格式化输出层。

# 工厂函数

  - NewMigratorFromConfig / NewMigratorFromCatalogConfig：从 config.CatalogConfig 构建。
  - NewMigratorFromURL：直接使用驱动名与 URL。

SQLite 使用纯 Go 驱动（注册名 "sqlite"），与 gorm 目录连接一致，无需 CGO。
*/
package migration
