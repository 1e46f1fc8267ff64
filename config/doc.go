// Package config 提供 ArtifactFlow 的配置管理功能。
//
// 包含默认值、YAML 文件加载、环境变量覆盖（ARTIFACTFLOW_ 前缀）与校验。
// 配置分为 store、audit、phi、catalog、log、telemetry、metrics 七个部分。
package config
