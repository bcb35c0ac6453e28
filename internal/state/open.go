package state

import (
	"context"
	"fmt"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

// Open returns the store selected by the state.backend configuration. Stores
// holding resources implement io.Closer.
func Open(ctx context.Context, cfg model.State) (Store, error) {
	switch cfg.Backend {
	case "", model.StateBackendJSON:
		return NewFileStore(cfg.Path), nil
	case model.StateBackendSQLite:
		return OpenSQLStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported state backend %q", cfg.Backend)
	}
}
