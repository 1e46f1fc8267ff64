/*
包 catalog 将制品索引与处理运行镜像到 SQL 数据库，供外部报表与检索使用。

目录是派生数据：文件系统上的元数据文档才是权威来源。Manager 在启动时
全量同步，每次变更后增量 upsert；目录写入失败只记录日志，不影响主流程。

表结构由 internal/migration 管理，连接池与事务由 internal/database 提供。
*/
package catalog
