package config

// Application constants
const (
	AppName = "kpi-warehouse"

	DefaultPort           = 8080
	DefaultDatabaseDriver = "sqlite"
	DefaultDatabaseDSN    = "data/warehouse.db?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	// DefaultAnomalyThreshold bounds the absolute value of any cleansed metric.
	DefaultAnomalyThreshold = 1_000_000.0

	// Rate Limiting
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 40

	DefaultDataDir    = "data"
	DefaultExportsDir = "data/exports"
	DefaultLogsDir    = "logs"
)
