package config

import (
	"os"
	"time"
)

// Config carries every setting the server needs. The analysis client takes
// its endpoint, key and polling bounds from here rather than reading the
// process environment at call time, so it can be constructed with test
// values.
type Config struct {
	ListenAddr string
	DBPath     string

	// Receipt image storage.
	ReceiptPath string

	// Backend for receipt analysis: "azure" or "claude".
	AnalyzerBackend string

	AzureEndpoint   string
	AzureKey        string
	AzureModelID    string
	AzureAPIVersion string
	PollInterval    time.Duration
	PollTimeout     time.Duration

	ClaudeAPIKey string
	ClaudeModel  string

	LogLevel  string
	LogFormat string
	LogFile   string
}

func Load() *Config {
	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "/data/splitbill.db"),
		ReceiptPath:     getEnv("RECEIPT_LOCAL_PATH", "/data/receipts"),
		AnalyzerBackend: getEnv("ANALYZER_BACKEND", "azure"),
		AzureEndpoint:   getEnv("AZURE_FORM_RECOGNIZER_ENDPOINT", ""),
		AzureKey:        getEnv("AZURE_FORM_RECOGNIZER_KEY", ""),
		AzureModelID:    getEnv("AZURE_MODEL_ID", "prebuilt-receipt"),
		AzureAPIVersion: getEnv("AZURE_API_VERSION", "2024-11-30"),
		PollInterval:    getDuration("ANALYZE_POLL_INTERVAL", 2*time.Second),
		PollTimeout:     getDuration("ANALYZE_POLL_TIMEOUT", 2*time.Minute),
		ClaudeAPIKey:    getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:     getEnv("CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		LogFile:         getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
