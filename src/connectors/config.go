package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BrokerBaseURL  string        `envconfig:"BROKER_BASE_URL" default:"https://testnet-api.broker.example"`
	BrokerTimeout  time.Duration `envconfig:"BROKER_TIMEOUT" default:"15s"`
	StreamURL      string        `envconfig:"BROKER_STREAM_URL" default:""`
	OracleExchange string        `envconfig:"PRICE_ORACLE_EXCHANGE" default:"binance"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
