package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Store:     DefaultStoreConfig(),
		Audit:     DefaultAuditConfig(),
		PHI:       DefaultPHIConfig(),
		Catalog:   DefaultCatalogConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
		Server:    DefaultServerConfig(),
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BasePath:          "./data",
		MaxFilenameLength: 100,
		Fsync:             true,
		AutoCleanupTemp:   true,
		TempMaxAge:        24 * time.Hour,
		VerifyWorkers:     4,
		MaxLineageNodes:   10000,
	}
}

// DefaultAuditConfig 返回默认审计配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		RotationSizeMB: 100,
		Fsync:          false,
	}
}

// DefaultPHIConfig 返回默认扫描配置
func DefaultPHIConfig() PHIConfig {
	return PHIConfig{
		Policy: "warn",
	}
}

// DefaultCatalogConfig 返回默认目录配置
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Name:            "./data/catalog.db",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "artifactflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "artifactflow",
	}
}

// DefaultServerConfig 返回默认服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":9090",
		ShutdownTimeout: 15 * time.Second,
	}
}
