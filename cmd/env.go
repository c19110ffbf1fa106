package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inbound-carrier/internal/carrier"
	"github.com/sells-group/inbound-carrier/internal/catalog"
	"github.com/sells-group/inbound-carrier/internal/resilience"
	"github.com/sells-group/inbound-carrier/internal/store"
	"github.com/sells-group/inbound-carrier/pkg/fmcsa"
)

// initStore opens the configured store and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initCatalog() (*catalog.Catalog, error) {
	return catalog.Open(cfg.Catalog.Path, catalog.Options{
		DefaultMinRatio: cfg.Catalog.DefaultMinRatio,
		SuggestLimit:    cfg.Catalog.SuggestLimit,
	})
}

// initVerifier builds the registry verifier. The breaker is returned so
// health checks can watch it.
func initVerifier() (*carrier.Verifier, *resilience.CircuitBreaker, error) {
	if cfg.FMCSA.WebKey == "" {
		return nil, nil, eris.New("fmcsa web key is required (INBOUND_FMCSA_WEB_KEY)")
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.FMCSA.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.FMCSA.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("fmcsa", "carrier_by_docket")

	opts := []fmcsa.Option{
		fmcsa.WithRateLimit(cfg.FMCSA.RatePerSec, cfg.FMCSA.Burst),
		fmcsa.WithRetry(retry),
	}
	if cfg.FMCSA.BaseURL != "" {
		opts = append(opts, fmcsa.WithBaseURL(cfg.FMCSA.BaseURL))
	}

	breaker := resilience.NewCircuitBreaker(
		resilience.FromCircuitConfig("fmcsa", cfg.FMCSA.BreakerThreshold, cfg.FMCSA.BreakerResetSecs))

	return carrier.NewVerifier(fmcsa.NewClient(cfg.FMCSA.WebKey, opts...), cfg.FMCSA.Timeout(), breaker), breaker, nil
}
