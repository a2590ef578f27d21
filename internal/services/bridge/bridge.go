// Package bridge converts amounts between currencies for cross-border
// settlement using a configured rate table.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrencyPair = errors.New("unsupported currency pair")
	ErrEmptyRateTable          = errors.New("bridge rate table is empty")
)

// RateTable maps an ordered "FROM/TO" pair to its conversion rate.
type RateTable map[string]decimal.Decimal

func pairKey(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}

// ParseRates reads "GHS/NGN=70,USD/GHS=15.2" style definitions.
func ParseRates(spec string) (RateTable, error) {
	table := RateTable{}
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pair, rate, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("rate %q: expected FROM/TO=RATE", item)
		}
		if err := table.add(pair, rate); err != nil {
			return nil, err
		}
	}
	return table, nil
}

type rateFile struct {
	Rates map[string]string `toml:"rates"`
}

// LoadRatesFile reads a TOML rate table:
//
//	[rates]
//	"GHS/NGN" = "70"
func LoadRatesFile(path string) (RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate file: %w", err)
	}
	var f rateFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("decode rate file: %w", err)
	}
	table := RateTable{}
	for pair, rate := range f.Rates {
		if err := table.add(pair, rate); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (t RateTable) add(pair, rate string) error {
	from, to, ok := strings.Cut(strings.TrimSpace(pair), "/")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || len(from) != 3 || len(to) != 3 {
		return fmt.Errorf("rate pair %q: expected FROM/TO with ISO codes", pair)
	}
	r, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return fmt.Errorf("rate %q for %s: %w", rate, pair, err)
	}
	if !r.IsPositive() {
		return fmt.Errorf("rate for %s must be positive", pair)
	}
	t[pairKey(from, to)] = r
	return nil
}

// Merge returns a table holding both sets of rates, other taking precedence.
func (t RateTable) Merge(other RateTable) RateTable {
	out := make(RateTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Service performs deterministic conversions.
type Service struct {
	rates RateTable
}

// NewService fails when the table is empty, since no transfer could be
// bridged.
func NewService(rates RateTable) (*Service, error) {
	if len(rates) == 0 {
		return nil, ErrEmptyRateTable
	}
	return &Service{rates: rates}, nil
}

// Convert returns amount × rate for the ordered pair. Pairs missing from the
// table fail closed, including identity pairs.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	rate, ok := s.rates[pairKey(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrencyPair, pairKey(from, to))
	}
	return amount.Mul(rate), nil
}

// Rate returns the configured rate for the pair.
func (s *Service) Rate(from, to string) (decimal.Decimal, bool) {
	r, ok := s.rates[pairKey(from, to)]
	return r, ok
}
