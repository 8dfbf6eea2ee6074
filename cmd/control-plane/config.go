package main

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Namespace string
	QueueCap  int

	PostgresDSN string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	DebounceWindow  time.Duration
	WatchdogTimeout time.Duration
	Timezone        string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			return dur
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		BrokerURL: getenv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		ClientID:  getenv("MQTT_CLIENT_ID", ""),
		Username:  getenv("MQTT_USERNAME", ""),
		Password:  getenv("MQTT_PASSWORD", ""),
		Namespace: getenv("TOPIC_NAMESPACE", "irrigation"),
		QueueCap:  getenvInt("PUBLISH_QUEUE_CAP", 1000),

		PostgresDSN: getenv("POSTGRES_DSN", ""),

		InfluxURL:    getenv("INFLUX_URL", ""),
		InfluxToken:  getenv("INFLUX_TOKEN", ""),
		InfluxOrg:    getenv("INFLUX_ORG", "hydrosense"),
		InfluxBucket: getenv("INFLUX_BUCKET", "telemetry"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DebounceWindow:  getenvDuration("DEBOUNCE_WINDOW", 30*time.Second),
		WatchdogTimeout: getenvDuration("WATCHDOG_TIMEOUT", 30*time.Minute),
		Timezone:        getenv("TZ", ""),
	}
}
