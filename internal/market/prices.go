package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type PriceEntry struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// PriceCache maps an instrument to its last observed price. Writers of
// different instruments never contend and readers never block writers.
type PriceCache struct {
	prices sync.Map
}

func NewPriceCache() *PriceCache {
	return &PriceCache{}
}

func (c *PriceCache) Set(instrument string, price decimal.Decimal, observedAt time.Time) {
	c.prices.Store(instrument, PriceEntry{Price: price, ObservedAt: observedAt})
}

func (c *PriceCache) Get(instrument string) (PriceEntry, bool) {
	v, ok := c.prices.Load(instrument)
	if !ok {
		return PriceEntry{}, false
	}
	return v.(PriceEntry), true
}

// Price returns the cached price or a PriceUnavailableError.
func (c *PriceCache) Price(instrument string) (PriceEntry, error) {
	entry, ok := c.Get(instrument)
	if !ok {
		return PriceEntry{}, &PriceUnavailableError{Instrument: instrument}
	}
	return entry, nil
}

func (c *PriceCache) Snapshot() map[string]PriceEntry {
	out := make(map[string]PriceEntry)
	c.prices.Range(func(k, v any) bool {
		out[k.(string)] = v.(PriceEntry)
		return true
	})
	return out
}

type PriceUnavailableError struct {
	Instrument string
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("no cached price for %s", e.Instrument)
}
