/*
Package main 提供 artifactctl 命令行工具，用于运维制品存储。

# 子命令

  - stats：存储、制品、运行与审计错误汇总
  - list：按类型/状态/运行/模块筛选制品
  - lineage：打印制品的上游血缘树
  - verify：校验单个或全部制品的校验和，并可校验审计哈希链
  - history：打印制品的审计历史
  - export：导出审计日志（json/jsonl/csv）
  - cleanup：清理超过保留期的制品与孤儿文件
  - migrate：管理 SQL 目录的 Schema 版本
  - version：显示构建信息

所有子命令接受 --config 指定 YAML 配置文件，环境变量前缀为 ARTIFACTFLOW。
输出为 JSON（stats/lineage/verify）或制表文本（list/history）。
*/
package main
