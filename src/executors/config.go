package executors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	StreamAPIKey      string `envconfig:"BROKER_STREAM_API_KEY" default:""`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
