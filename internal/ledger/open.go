package ledger

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// Open returns the backend selected by cfg.LedgerBackend.
func Open(ctx context.Context, cfg engine.Config) (Store, error) {
	switch cfg.LedgerBackend {
	case "sqlite", "":
		return OpenSQLite(cfg.SQLitePath, cfg.ScanPageSize)
	case "postgres":
		return ConnectPostgres(ctx, cfg.DatabaseURL, cfg.ScanPageSize)
	case "mongo":
		return ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, cfg.ScanPageSize)
	case "dynamodb":
		return ConnectDynamo(ctx, cfg.AWSRegion, cfg.DynamoTable, cfg.ScanPageSize)
	case "memory":
		return NewMemoryStore(cfg.ScanPageSize), nil
	default:
		return nil, fmt.Errorf("ledger: unsupported backend %q", cfg.LedgerBackend)
	}
}
