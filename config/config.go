package config

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12333"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"TOKENSTACK_POSTGRES_HOST,required"`
	Port            string `env:"TOKENSTACK_POSTGRES_PORT,required"`
	User            string `env:"TOKENSTACK_POSTGRES_USER,required"`
	DBName          string `env:"TOKENSTACK_POSTGRES_DB_NAME,required"`
	Password        string `env:"TOKENSTACK_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"TOKENSTACK_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"TOKENSTACK_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"TOKENSTACK_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"TOKENSTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"TOKENSTACK_POSTGRES_SSL_MODE" envDefault:"require"`
}

type EncryptionConfig struct {
	// ProcessSecret feeds the one-time key derivation; changing it strands all
	// previously stored credentials (operator must re-export/re-import).
	ProcessSecret string `env:"CREDENTIAL_ENCRYPTION_SECRET,required"`
}

type ProviderConfig struct {
	TokenURL       string `env:"PROVIDER_TOKEN_URL" envDefault:"https://login.microsoftonline.com/consumers/oauth2/v2.0/token"`
	Scope          string `env:"PROVIDER_TOKEN_SCOPE" envDefault:"https://outlook.office.com/IMAP.AccessAsUser.All offline_access"`
	TimeoutSeconds int    `env:"PROVIDER_TIMEOUT_SECONDS" envDefault:"30"`
}

type SchedulerConfig struct {
	// EvaluateIntervalSeconds is how often the policy is re-read and the
	// next-run time checked; policy updates take effect on the next tick.
	EvaluateIntervalSeconds int `env:"SCHEDULER_EVALUATE_INTERVAL_SECONDS" envDefault:"30"`
}
