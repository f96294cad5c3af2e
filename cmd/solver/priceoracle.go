package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rainsolver/solver/internal/router"
)

// facadePriceOracle supplies simulator.Simulator's eth_price_18 input by
// asking the router façade for a named reference backend's live price of
// one unit of nativeToken against priceReferenceToken (a stablecoin, almost
// always), bypassing the route cache via Facade.GetMarketPrice.
type facadePriceOracle struct {
	facade     *router.Facade
	backend    string
	quoteToken string
}

func newFacadePriceOracle(facade *router.Facade, backend, quoteToken string) *facadePriceOracle {
	return &facadePriceOracle{facade: facade, backend: backend, quoteToken: quoteToken}
}

// EthPrice18 returns the 18-decimal ETH-denominated price of one unit of
// token. token is typically the pair's buy_token; when it already is the
// quote token (a stablecoin priced against itself) the price is the
// identity 1e18.
func (o *facadePriceOracle) EthPrice18(ctx context.Context, token string) (*big.Int, error) {
	if token == o.quoteToken {
		return big.NewInt(1e18), nil
	}
	price, err := o.facade.GetMarketPrice(ctx, o.backend, token, o.quoteToken)
	if err != nil {
		return nil, fmt.Errorf("priceoracle: %s/%s: %w", token, o.quoteToken, err)
	}
	return price, nil
}
