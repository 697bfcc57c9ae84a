package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/careerledger/internal/codec"
	"github.com/jmerrifield20/careerledger/internal/journal"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// backends holds the storage selected by configuration and the connections
// that must be closed on shutdown.
type backends struct {
	ledger  ledger.Ledger
	journal journal.Journal
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, logger *zap.Logger) (*backends, error) {
	b := &backends{}
	var pool *pgxpool.Pool

	postgres := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		b.closers = append(b.closers, p.Close)
		pool = p
		return p, nil
	}

	switch driver := viper.GetString("ledger.driver"); driver {
	case "memory":
		logger.Warn("ledger driver: memory; records are lost on restart")
		b.ledger = ledger.NewMemory()
	case "redis":
		client, err := ledger.NewRedisClient(ctx, ledger.RedisConfig{
			URL:      viper.GetString("ledger.redis_url"),
			PoolSize: viper.GetInt("ledger.redis_pool_size"),
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.ledger = ledger.NewRedisLedger(client, logger)
	case "postgres":
		p, err := postgres()
		if err != nil {
			return nil, err
		}
		b.ledger = ledger.NewPostgresLedger(p, logger)
	default:
		return nil, fmt.Errorf("unknown ledger.driver %q (want memory, redis or postgres)", driver)
	}

	switch driver := viper.GetString("journal.driver"); driver {
	case "memory":
		b.journal = journal.NewMemory()
	case "postgres":
		p, err := postgres()
		if err != nil {
			b.Close()
			return nil, err
		}
		pj := journal.NewPostgres(p, logger)
		if err := pj.EnsureGenesis(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("journal genesis: %w", err)
		}
		b.journal = pj
	default:
		b.Close()
		return nil, fmt.Errorf("unknown journal.driver %q (want memory or postgres)", driver)
	}

	if err := b.journal.Verify(ctx); err != nil {
		logger.Warn("audit journal integrity check FAILED", zap.Error(err))
	} else {
		n, _ := b.journal.Len(ctx)
		root, _ := b.journal.Root(ctx)
		logger.Info("audit journal verified", zap.Int("entries", n), zap.String("root", root))
	}
	return b, nil
}

func openEncrypter() (codec.Encrypter, error) {
	switch mode := viper.GetString("encryption.mode"); mode {
	case "placeholder", "":
		return codec.PlaceholderFHE{}, nil
	case "sealed":
		box, err := codec.NewSealedBox(viper.GetString("encryption.passphrase"), viper.GetString("encryption.salt"))
		if err != nil {
			return nil, err
		}
		return box, nil
	default:
		return nil, fmt.Errorf("unknown encryption.mode %q (want placeholder or sealed)", mode)
	}
}
