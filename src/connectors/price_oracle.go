package connectors

import (
	"context"
	"net/http"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"
)

// GoexPriceOracle resolves current prices through a goex exchange client. A
// failed or empty ticker yields a nil price, never an error surfaced to the
// aggregation math: missing price is a defined "unknown" result.
type GoexPriceOracle struct {
	exchange goex.API
}

// NewGoexPriceOracle builds an oracle backed by the Binance public ticker API.
func NewGoexPriceOracle() *GoexPriceOracle {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &GoexPriceOracle{exchange: binance.NewWithConfig(apiConfig)}
}

// NewGoexPriceOracleWithAPI allows injecting any goex.API, used by tests.
func NewGoexPriceOracleWithAPI(api goex.API) *GoexPriceOracle {
	return &GoexPriceOracle{exchange: api}
}

// CurrentPrice returns the latest traded price for the symbol, or nil when the
// exchange cannot provide one.
func (o *GoexPriceOracle) CurrentPrice(ctx context.Context, symbol string) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Symbols are stored in goex "BASE_QUOTE" form, e.g. BTC_USDT.
	pair := goex.NewCurrencyPair2(symbol)
	ticker, err := o.exchange.GetTicker(pair)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"connector": "GoexPriceOracle",
			"symbol":    symbol,
		}).WithError(err).Warn("Ticker fetch failed, price unknown")
		return nil, nil
	}
	if ticker == nil || ticker.Last == 0 {
		return nil, nil
	}

	price := ticker.Last
	return &price, nil
}

// CurrentPrices resolves a batch of symbols. Symbols without a price map to
// nil entries.
func (o *GoexPriceOracle) CurrentPrices(ctx context.Context, symbols []string) (map[string]*float64, error) {
	prices := make(map[string]*float64, len(symbols))
	for _, symbol := range symbols {
		price, err := o.CurrentPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		prices[symbol] = price
	}
	return prices, nil
}
