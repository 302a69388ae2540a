// Command iconaudit runs the Temporal worker that periodically checks the
// icons referenced by the themer presets.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/geofield/internal/adapters/icons"
	"github.com/samirrijal/geofield/internal/adapters/valkey"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
	"github.com/samirrijal/geofield/internal/pkg/config"
	"github.com/samirrijal/geofield/internal/pkg/logging"
	"github.com/samirrijal/geofield/internal/workflows"
)

const auditWorkflowID = "geofield-icon-audit"

func main() {
	cfg, err := config.Load("geofield-iconaudit")
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "geofield-iconaudit")

	if cfg.Themers.PresetsFile == "" {
		logger.Error("themers.presets_file is required: there is nothing to audit")
		os.Exit(1)
	}
	themers := usecases.NewDefaultRegistry()
	n, err := themers.LoadPresets(cfg.Themers.PresetsFile)
	if err != nil {
		logger.Error("themer presets", "error", err)
		os.Exit(1)
	}
	logger.Info("themer presets loaded", "count", n)

	resolver, err := icons.NewResolver(cfg.Icons.BaseURL)
	if err != nil {
		logger.Error("icons", "error", err)
		os.Exit(1)
	}

	// Audits share the icon status cache with the API when Valkey is up,
	// so a broken icon found here is skipped by renders too.
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr, "geofield:")
		if err != nil {
			logger.Warn("valkey unavailable, auditing without cache", "error", err)
		} else {
			defer vc.Close()
			cache = vc
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		logger.Error("temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.IconAuditWorkflow)
	w.RegisterActivity(&workflows.IconAuditActivities{
		Themers:   themers,
		Resolver:  resolver,
		Validator: icons.NewValidator(time.Duration(cfg.Icons.HeadTimeout)*time.Second, cache, cfg.Icons.CacheTTL),
		Logger:    logger,
	})

	// An already running cron workflow is reused, not duplicated.
	if cfg.Temporal.AuditInterval > 0 {
		run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
			ID:           auditWorkflowID,
			TaskQueue:    cfg.Temporal.TaskQueue,
			CronSchedule: fmt.Sprintf("@every %dm", cfg.Temporal.AuditInterval),
		}, workflows.IconAuditWorkflow, workflows.IconAuditInput{})
		if err != nil {
			logger.Error("schedule icon audit", "error", err)
			os.Exit(1)
		}
		logger.Info("icon audit scheduled", "workflow_id", run.GetID(), "every_minutes", cfg.Temporal.AuditInterval)
	}

	logger.Info("icon audit worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker", "error", err)
		os.Exit(1)
	}
}
