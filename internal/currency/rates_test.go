package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arbiscout/internal"
	"arbiscout/internal/config"
)

func TestStaticProviderRates(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	p := NewStaticProvider(cfg)

	t.Run("identity", func(t *testing.T) {
		rate, err := p.Rate("USD", "USD")
		require.NoError(t, err)
		require.True(t, rate.Equal(decimal.NewFromInt(1)))
	})

	t.Run("direct and inverse", func(t *testing.T) {
		rubUSD, err := p.Rate("RUB", "USD")
		require.NoError(t, err)
		usdRUB, err := p.Rate("USD", "RUB")
		require.NoError(t, err)
		require.True(t, usdRUB.Equal(decimal.NewFromFloat(85.0)))
		product, _ := rubUSD.Mul(usdRUB).Float64()
		require.InDelta(t, 1.0, product, 1e-9)
	})

	t.Run("cross pair triangulates", func(t *testing.T) {
		cnyRUB, err := p.Rate("CNY", "RUB")
		require.NoError(t, err)
		// 1 CNY = 85/7.14 RUB
		got, _ := cnyRUB.Float64()
		require.InDelta(t, 85.0/7.14, got, 1e-9)
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, err := p.Rate("EUR", "RUB")
		require.Error(t, err)
	})
}

func TestConvert(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	p := NewStaticProvider(cfg)

	money := internal.NewMoney(decimal.NewFromInt(8500), "RUB")
	converted, err := Convert(p, money, "USD")
	require.NoError(t, err)
	require.Equal(t, "USD", converted.Currency)
	got, _ := converted.Amount.Float64()
	require.InDelta(t, 100.0, got, 1e-9)

	same, err := Convert(p, money, "RUB")
	require.NoError(t, err)
	require.Equal(t, money, same)
}
