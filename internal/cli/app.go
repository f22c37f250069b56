package cli

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/sitestore/internal/common/logtrace"
	"github.com/tansive/sitestore/internal/common/uuidv7utils"
	"github.com/tansive/sitestore/internal/sitestore/bootstrap"
	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/modelfactory"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	configFile string
	jsonOutput bool
	connector  dbmanager.Connector
	retryDelay time.Duration

	cfg     *config.ConfigParam
	factory *modelfactory.Factory
}

type Option func(*app)

// WithConnector makes commands use connector instead of the configured driver.
func WithConnector(connector dbmanager.Connector) Option {
	return func(a *app) {
		a.connector = connector
	}
}

// WithRetryDelay sets the initial delay between attempts to reach a database.
func WithRetryDelay(d time.Duration) Option {
	return func(a *app) {
		a.retryDelay = d
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadConfig(a.configFile); err != nil {
		return err
	}
	a.cfg = config.Config()
	logtrace.ConfigureLogger(a.cfg.Log.Level, a.cfg.Log.Format)
	cmd.SetContext(logtrace.SetRequestIdInContext(cmd.Context(), uuidv7utils.NewDocumentId()))

	connector := a.connector
	if connector == nil {
		var err error
		connector, err = dbmanager.NewConnector(a.cfg.Database)
		if err != nil {
			return err
		}
	}
	a.factory = modelfactory.New(dbmanager.NewRegistry(connector), a.cfg.Database.NamePrefix)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.factory == nil {
		return nil
	}
	return a.factory.Close(context.WithoutCancel(cmd.Context()))
}

func (a *app) bootstrapper() *bootstrap.Bootstrapper {
	return bootstrap.New(a.factory, a.cfg.Bootstrap.DefaultSiteTitle)
}

// waitForDatabase acquires dbName, retrying while the server is unreachable.
func (a *app) waitForDatabase(ctx context.Context, dbName string, attempts uint) (dbmanager.Conn, error) {
	delay := a.retryDelay
	if delay == 0 {
		delay = time.Second
	}
	var conn dbmanager.Conn
	err := retry.Do(func() error {
		var err error
		conn, err = a.factory.Registry().Acquire(ctx, dbName)
		return err
	}, retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, dberror.ErrConnectivity)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Str("db", dbName).Uint("attempt", n+1).Msg("database not reachable, retrying")
		}))
	if err != nil {
		return nil, err
	}
	return conn, nil
}
