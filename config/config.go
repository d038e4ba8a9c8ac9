package config

import "time"

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required" validate:"required"`
	Tenant      string `env:"APP_TENANT" envDefault:"default" validate:"required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type ReplicaDatabaseConfig struct {
	Host            string `env:"REPLICA_POSTGRES_HOST,required" validate:"required"`
	Port            string `env:"REPLICA_POSTGRES_PORT,required" validate:"required"`
	User            string `env:"REPLICA_POSTGRES_USER,required" validate:"required"`
	DBName          string `env:"REPLICA_POSTGRES_DB_NAME,required" validate:"required"`
	Password        string `env:"REPLICA_POSTGRES_PASSWORD,required" validate:"required"`
	MaxConn         int    `env:"REPLICA_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"REPLICA_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"REPLICA_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"REPLICA_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"REPLICA_POSTGRES_SSL_MODE" envDefault:"require"`
}

// SourceConfig describes the mail client's envelope index we mirror
type SourceConfig struct {
	DBPath          string `env:"SOURCE_DB_PATH,required" validate:"required"`
	Name            string `env:"SOURCE_NAME" envDefault:"mail-envelope-index" validate:"required"`
	OpenMode        string `env:"SOURCE_OPEN_MODE" envDefault:"ro"`
	MessagesDir     string `env:"SOURCE_MESSAGES_DIR"`
	SnippetMaxChars int    `env:"SOURCE_SNIPPET_MAX_CHARS" envDefault:"500" validate:"gte=0"`
}

type SyncConfig struct {
	BatchSize          int `env:"SYNC_BATCH_SIZE" envDefault:"200" validate:"gt=0"`
	MaxBatchesPerCycle int `env:"SYNC_MAX_BATCHES_PER_CYCLE" envDefault:"50" validate:"gt=0"`
}

type ClassifyConfig struct {
	Concurrency      int     `env:"CLASSIFY_CONCURRENCY" envDefault:"4" validate:"gt=0"`
	RateLimitPerMin  int     `env:"CLASSIFY_RATE_LIMIT_PER_MIN" envDefault:"30" validate:"gt=0"`
	DailyBudget      float64 `env:"CLASSIFY_DAILY_BUDGET" envDefault:"1.0" validate:"gte=0"`
	MonthlyBudget    float64 `env:"CLASSIFY_MONTHLY_BUDGET" envDefault:"20.0" validate:"gte=0"`
	CostPerCall      float64 `env:"CLASSIFY_COST_PER_CALL" envDefault:"0.002" validate:"gte=0"`
	BatchLimit       int     `env:"CLASSIFY_BATCH_LIMIT" envDefault:"100" validate:"gt=0"`
	PrefilterEnabled bool    `env:"CLASSIFY_PREFILTER_ENABLED" envDefault:"true"`
}

type ClassifierAPIConfig struct {
	Url     string        `env:"CLASSIFIER_URL,required" validate:"required,url"`
	ApiKey  string        `env:"CLASSIFIER_API_KEY"`
	Model   string        `env:"CLASSIFIER_MODEL" envDefault:"default"`
	Timeout time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s" validate:"gt=0"`
}
