package service

import (
	"context"

	"github.com/blinkdate/match-server-go/internal/database"
)

// TxRunner is the slice of database.DB the services need. Tests provide
// a runner that executes the closure without a live database.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

var _ TxRunner = (*database.DB)(nil)
