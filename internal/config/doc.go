// Package config provides centralized configuration management for the KPI
// warehouse. It loads configuration from multiple sources, validates it and
// exposes a typed struct to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file (KPIW_CONFIG_FILE, config.yaml or configs/config.yaml)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern KPIW_* for namespacing:
//
//	KPIW_SERVER_PORT=8080
//	KPIW_DATABASE_DSN=data/warehouse.db
//	KPIW_CLEANSING_DEFAULT_ANOMALY_THRESHOLD=1000000
//	KPIW_CLEANSING_ANOMALY_THRESHOLDS=revenue:5000000,downtime_hours:744
//	KPIW_KPI_AUTO_CALCULATE=true
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
