package instrument

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lp-hedge-bot/internal/config"
)

// Instrument is the immutable reference data for one hedgeable symbol. The
// unit scale converts aggregated on-chain quantities into venue contract
// units (e.g. 1000 when one contract represents a thousandth of the token).
type Instrument struct {
	Symbol    string
	UnitScale float64
	Auto      bool
	Contracts map[string]common.Address
}

type Registry struct {
	bySymbol map[string]Instrument
	order    []string
}

func NewRegistry(cfgs []config.InstrumentConfig) (*Registry, error) {
	reg := &Registry{bySymbol: make(map[string]Instrument, len(cfgs))}
	for _, c := range cfgs {
		symbol := strings.ToUpper(strings.TrimSpace(c.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("instrument with empty symbol")
		}
		if _, dup := reg.bySymbol[symbol]; dup {
			return nil, fmt.Errorf("duplicate instrument %s", symbol)
		}
		if c.UnitScale <= 0 {
			return nil, fmt.Errorf("instrument %s: unit_scale must be > 0", symbol)
		}
		contracts := make(map[string]common.Address, len(c.Contracts))
		for chain, addr := range c.Contracts {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("instrument %s: invalid contract address %q on chain %s", symbol, addr, chain)
			}
			contracts[chain] = common.HexToAddress(addr)
		}
		reg.bySymbol[symbol] = Instrument{
			Symbol:    symbol,
			UnitScale: c.UnitScale,
			Auto:      c.Auto,
			Contracts: contracts,
		}
		reg.order = append(reg.order, symbol)
	}
	return reg, nil
}

func (r *Registry) Get(symbol string) (Instrument, bool) {
	inst, ok := r.bySymbol[strings.ToUpper(symbol)]
	return inst, ok
}

// Symbols returns symbols in config order so decision cycles are stable.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AutoSymbols reports which instruments are flagged for automated hedging.
func (r *Registry) AutoSymbols() map[string]bool {
	out := make(map[string]bool, len(r.bySymbol))
	for symbol, inst := range r.bySymbol {
		out[symbol] = inst.Auto
	}
	return out
}
