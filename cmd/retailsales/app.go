package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/clock"
	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/fact"
	"github.com/smallbiznis/retailsales/internal/lock"
	"github.com/smallbiznis/retailsales/internal/migration"
	"github.com/smallbiznis/retailsales/internal/observability"
	"github.com/smallbiznis/retailsales/internal/rollup"
	"github.com/smallbiznis/retailsales/internal/rollup/backfill"
	"github.com/smallbiznis/retailsales/internal/scd"
	"github.com/smallbiznis/retailsales/pkg/db"
	"go.uber.org/fx"
)

// coreModules wires every component shared by the server and the one-shot
// commands.
func coreModules() fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		// Functional Domains
		fact.Module,
		rollup.Module,
		scd.Module,
		backfill.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// runTask starts the application without its long-running parts, populates
// targets, runs fn and stops the application again.
func runTask(ctx context.Context, fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(
		coreModules(),
		fx.NopLogger,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
