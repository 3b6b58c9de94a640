package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartKeyExpiry deletes key from kv_entries every interval once it has not
// been written for longer than retention. Used to expire remembered sessions.
func StartKeyExpiry(
	ctx context.Context,
	db *sql.DB,
	key string,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				res, err := db.ExecContext(ctx, `
                    DELETE FROM kv_entries
                     WHERE key = $1
                       AND updated_at < $2
                `, key, cutoff)
				if err != nil {
					log.Error("failed to expire entry", zap.String("key", key), zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("expired entry removed", zap.String("key", key))
				}
			}
		}
	}()
}
