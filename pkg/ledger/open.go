package ledger

import (
	"context"
	"fmt"

	"igfetch/pkg/config"
)

// Open returns the ledger backend selected in cfg
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case config.LedgerFile, "":
		l, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.LedgerRedis:
		l, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			SetKey:   cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}
