package main

import (
	"context"
	"os"
	"sync"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/blobstore"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/ejournal-workflow-api/internal/transport"
	"github.com/ejournal-workflow-api/pkg/logger"
	"github.com/rs/zerolog"
)

// commandContext lazily builds the collaborators a command needs.
// Tests pre-fill config, runner and services to skip the database.
type commandContext struct {
	envFileFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        zerolog.Logger

	db       *database.DB
	runner   repository.TxRunner
	services *service.Services
}

func newCommandContext(envFileFlag *string) *commandContext {
	return &commandContext{
		envFileFlag: envFileFlag,
		log:         zerolog.Nop(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.config != nil {
			return
		}
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.log = logger.NewWithWriter(cfg.Log, os.Stderr)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureDB() (*database.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.New(&cfg.Database, c.log)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

func (c *commandContext) ensureRunner() (repository.TxRunner, error) {
	if c.runner != nil {
		return c.runner, nil
	}
	db, err := c.ensureDB()
	if err != nil {
		return nil, err
	}
	c.runner = repository.NewTxRunner(db)
	return c.runner, nil
}

func (c *commandContext) ensureServices(ctx context.Context) (*service.Services, error) {
	if c.services != nil {
		return c.services, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	runner, err := c.ensureRunner()
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	mailer, err := transport.New(ctx, cfg.Mail, c.log)
	if err != nil {
		return nil, err
	}
	c.services = service.NewServices(runner, auth.NewAuthorizer(runner.Repos().User), blobs, mailer, cfg, c.log)
	return c.services, nil
}

func (c *commandContext) close() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close database")
	}
	c.db = nil
}
