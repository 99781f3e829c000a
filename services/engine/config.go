package engine

// Run parameters and the reproducibility manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunConfig holds the execution and cost parameters of one backtest.
type RunConfig struct {
	ExecutionLag   int        `json:"execution_lag" yaml:"execution_lag" default:"1" validate:"gte=0"`
	TradeOn        PriceField `json:"trade_on" yaml:"trade_on" default:"close" validate:"oneof=open high low close"`
	InitialCapital float64    `json:"initial_capital" yaml:"initial_capital" default:"1000000" validate:"gt=0"`
	TaxRate        float64    `json:"tax_rate" yaml:"tax_rate" default:"0.003" validate:"gte=0,lt=1"`
	CommissionRate float64    `json:"commission_rate" yaml:"commission_rate" default:"0.001425" validate:"gte=0,lt=1"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		ExecutionLag:   1,
		TradeOn:        FieldClose,
		InitialCapital: 1_000_000,
		TaxRate:        0.003,
		CommissionRate: 0.001425,
	}
}

func (c RunConfig) Costs() CostModel {
	return CostModel{CommissionRate: c.CommissionRate, TaxRate: c.TaxRate}
}

// Manifest identifies a run and fingerprints the parameters it ran with.
type Manifest struct {
	RunID       string    `json:"run_id"`
	BuySymbol   string    `json:"buy_symbol"`
	ShortSymbol string    `json:"short_symbol"`
	HedgeRatio  string    `json:"hedge_ratio"`
	ConfigHash  string    `json:"config_hash"`
	Bars        int       `json:"bars"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewManifest(pair PairSeries, hedge HedgeRatio, cfg RunConfig) Manifest {
	payload, _ := json.Marshal(struct {
		Config RunConfig `json:"config"`
		Hedge  string    `json:"hedge"`
	}{cfg, hedge.String()})
	return Manifest{
		RunID:       uuid.NewString(),
		BuySymbol:   pair.Buy.Symbol,
		ShortSymbol: pair.Short.Symbol,
		HedgeRatio:  hedge.String(),
		ConfigHash:  fmt.Sprintf("%x", sha256.Sum256(payload)),
		Bars:        pair.Buy.Len(),
		CreatedAt:   time.Now().UTC(),
	}
}
