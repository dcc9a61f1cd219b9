// Package gateway reconciles the in-memory replica with durable storage at
// startup and keeps a local snapshot of it.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

type Outcome string

const (
	// OutcomeCloud: durable storage had data and replaced the replica.
	OutcomeCloud Outcome = "cloud"
	// OutcomePushed: durable storage was empty and the local replica was uploaded.
	OutcomePushed Outcome = "pushed"
	OutcomeEmpty  Outcome = "empty"
	// OutcomeLocal: durable storage was unreachable or the push failed; the
	// local snapshot is served.
	OutcomeLocal Outcome = "local"
)

// Durable is the slice of catalog.Repository the gateway needs.
type Durable interface {
	FindAll(ctx context.Context) ([]model.Item, error)
	BulkUpsert(ctx context.Context, items []model.Item) error
}

type Gateway struct {
	durable Durable
	local   *LocalReplica
	store   *catalog.Store
	logger  logger.ZapLogger
	now     func() time.Time
}

func New(durable Durable, local *LocalReplica, store *catalog.Store, log logger.ZapLogger) *Gateway {
	return &Gateway{
		durable: durable,
		local:   local,
		store:   store,
		logger:  log,
		now:     time.Now,
	}
}

// Reconcile runs once at startup. Non-empty durable storage wins and
// overwrites the local snapshot. When it is empty, a non-empty local
// snapshot is pushed as-is, transactions included. The replica is always
// populated on return, even when err is non-nil.
func (g *Gateway) Reconcile(ctx context.Context) (Outcome, error) {
	local, localErr := g.local.Load()
	if localErr != nil {
		g.logger.Warn("ignoring unreadable local snapshot", zap.String("path", g.local.Path()), zap.Error(localErr))
		local = nil
	}

	cloud, err := g.durable.FindAll(ctx)
	if err != nil {
		g.store.SetItems(local)
		g.logger.Error("durable storage unavailable, serving local snapshot",
			zap.Int("items", len(local)),
			zap.Error(err),
		)
		return OutcomeLocal, fmt.Errorf("failed to load durable catalog: %w", err)
	}

	switch {
	case len(cloud) > 0:
		g.store.SetItems(cloud)
		if err := g.local.Save(cloud, g.now()); err != nil {
			g.logger.Warn("failed to refresh local snapshot", zap.Error(err))
		}
		g.logger.Info("replica loaded from durable storage", zap.Int("items", len(cloud)))
		return OutcomeCloud, nil

	case len(local) > 0:
		g.store.SetItems(local)
		if err := g.durable.BulkUpsert(ctx, local); err != nil {
			g.logger.Error("failed to push local snapshot", zap.Int("items", len(local)), zap.Error(err))
			return OutcomeLocal, fmt.Errorf("failed to push local snapshot: %w", err)
		}
		g.logger.Info("local snapshot pushed to durable storage", zap.Int("items", len(local)))
		return OutcomePushed, nil

	default:
		g.store.SetItems(nil)
		g.logger.Info("catalog is empty")
		return OutcomeEmpty, nil
	}
}

// Flush writes the current replica to the local snapshot.
func (g *Gateway) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	items := g.store.Items()
	if err := g.local.Save(items, g.now()); err != nil {
		return err
	}
	g.logger.Info("local snapshot written", zap.String("path", g.local.Path()), zap.Int("items", len(items)))
	return nil
}
