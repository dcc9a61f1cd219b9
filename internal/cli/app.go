// Package cli implements the stockctl maintenance commands.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/google/subcommands"
	"github.com/jmoiron/sqlx"

	"github.com/fekuna/omnipos-stock-service/config"
	catRepoPkg "github.com/fekuna/omnipos-stock-service/internal/catalog/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

// App carries what every command needs. Tests replace the func fields.
type App struct {
	Config *config.Config
	Out    io.Writer
	Logger logger.ZapLogger

	OpenDB    func() (*sqlx.DB, error)
	LoadItems func(ctx context.Context) ([]model.Item, error)
}

func NewApp(cfg *config.Config, out io.Writer, log logger.ZapLogger) *App {
	a := &App{Config: cfg, Out: out, Logger: log}
	a.OpenDB = a.openPostgres
	a.LoadItems = a.loadFromPostgres
	return a
}

// Commands lists every stockctl subcommand.
func (a *App) Commands() []subcommands.Command {
	return []subcommands.Command{
		&migrateCmd{app: a},
		&syncCmd{app: a},
		&valuationCmd{app: a},
		&checkCmd{app: a},
	}
}

func (a *App) openPostgres() (*sqlx.DB, error) {
	pc := a.Config.Postgres
	return postgres.NewPostgres(&postgres.Config{
		Host:            pc.Host,
		Port:            pc.Port,
		User:            pc.User,
		Password:        pc.Password,
		DBName:          pc.DBName,
		SSLMode:         pc.SSLMode,
		MaxOpenConns:    pc.MaxOpenConns,
		MaxIdleConns:    pc.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pc.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(pc.ConnMaxIdleTime) * time.Second,
	})
}

func (a *App) loadFromPostgres(ctx context.Context) ([]model.Item, error) {
	db, err := a.OpenDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return catRepoPkg.NewPGRepository(db, nil).FindAll(ctx)
}

func (a *App) location() *time.Location {
	loc, err := a.Config.Location()
	if err != nil {
		return time.Local
	}
	return loc
}
