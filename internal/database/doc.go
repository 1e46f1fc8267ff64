// 版权所有 2024 ArtifactFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为制品目录库提供基于 GORM 的连接打开与连接池管理。

# 核心类型

  - Open：按 config.CatalogConfig 选择 postgres、mysql 或纯 Go sqlite 驱动。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()，后台健康检查并上报连接数指标。
  - PoolConfig：连接池配置与 Validate 校验。
  - TransactionFunc：事务回调，WithTransaction 记录查询耗时，
    WithTransactionRetry 对死锁、序列化失败、sqlite 锁冲突做指数退避重试。
*/
package database
