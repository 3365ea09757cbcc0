package mariadb

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

func init() {
	database.RegisterBackend(config.BackendMariaDB, func(ctx context.Context, cfg *config.Config, _ *zap.Logger) (database.Ledger, error) {
		pool, err := NewPool(cfg.Database.MariaDBDSN)
		if err != nil {
			return nil, err
		}
		ledger := NewLedger(pool)
		if err := ledger.EnsureTables(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return ledger, nil
	})
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sqlx.DB
}

// NewPool creates a new MariaDB connection pool. The DSN must enable
// parseTime so DATETIME columns scan into time.Time.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
