package registry

import (
	"fmt"

	"github.com/meridianlabs/lendx/pkg/config"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is the single asset lookup point. Every other structure stores
// asset symbols or contract IDs only and resolves them here.
type Registry struct {
	bySymbol   *xsync.Map[string, *config.Asset]
	byContract *xsync.Map[string, *config.Asset]

	collateralSymbol   string
	collateralFeed     string
	collateralDecimals int32

	symbols []string
	pools   []string
}

// New builds a registry from the validated config.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		bySymbol:           xsync.NewMap[string, *config.Asset](),
		byContract:         xsync.NewMap[string, *config.Asset](),
		collateralSymbol:   cfg.Collateral.Symbol,
		collateralFeed:     cfg.Collateral.OracleFeed,
		collateralDecimals: cfg.Collateral.Decimals,
	}

	for i := range cfg.Assets {
		a := &cfg.Assets[i]
		if _, dup := r.byContract.Load(a.PoolContract); dup {
			return nil, fmt.Errorf("registry: contract %s mapped twice", a.PoolContract)
		}
		r.bySymbol.Store(a.Symbol, a)
		r.byContract.Store(a.PoolContract, a)
		if a.StakeContract != "" {
			r.byContract.Store(a.StakeContract, a)
		}
		r.symbols = append(r.symbols, a.Symbol)
		r.pools = append(r.pools, a.PoolContract)
		if a.StakeContract != "" {
			r.pools = append(r.pools, a.StakeContract)
		}
	}

	return r, nil
}

// BySymbol resolves an asset by its symbol.
func (r *Registry) BySymbol(symbol string) (*config.Asset, bool) {
	return r.bySymbol.Load(symbol)
}

// ByContract resolves an asset by pool or stake contract ID.
func (r *Registry) ByContract(contractID string) (*config.Asset, bool) {
	return r.byContract.Load(contractID)
}

// Symbols returns every configured asset symbol, in config order.
func (r *Registry) Symbols() []string {
	return r.symbols
}

// Contracts returns every known contract ID (pools and stake pools),
// in config order. This is the filter set for the event indexer.
func (r *Registry) Contracts() []string {
	return r.pools
}

// CollateralSymbol returns the symbol of the common collateral asset.
func (r *Registry) CollateralSymbol() string { return r.collateralSymbol }

// CollateralFeed returns the oracle feed ID of the collateral asset.
func (r *Registry) CollateralFeed() string { return r.collateralFeed }

// CollateralDecimals returns the decimal scale of the collateral asset.
func (r *Registry) CollateralDecimals() int32 { return r.collateralDecimals }
