package backend

import (
	"context"
	"fmt"

	"ucontrol/internal/amqp"
	"ucontrol/internal/log"
	"ucontrol/internal/ports"
	"ucontrol/internal/storage"
	"ucontrol/internal/storage/memory"
)

// SyncBindings are the routing keys the ledger sync queue receives.
var SyncBindings = []string{amqp.EventTransactionCreated, amqp.EventTransactionDeleted}

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo ports.Repository
		err  error
	)
	switch config.Type {
	case MemoryBackend:
		repo = memory.New()
	case SQLiteBackend:
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	case PostgresBackend:
		repo, err = storage.NewPostgresRepository(config.DatabaseURL, f.logger)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", config.Type, err)
	}

	result := &Result{Repository: repo, Cleanup: repo.Close}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, SyncBindings, f.logger)
		if err != nil {
			// Local storage is the source of truth; run without events.
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		} else {
			result.Publisher = client
			result.Cleanup = func() error {
				client.Close()
				return repo.Close()
			}
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized backend",
		log.FieldBackend, config.Type.String(),
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}
