package testsupport

import (
	"testing"

	"ampliconflow/internal/config"
	"ampliconflow/internal/ledger"
)

// MustOpenLedger opens the run ledger configured in cfg and registers
// cleanup with the provided testing.TB.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.Paths.LedgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
