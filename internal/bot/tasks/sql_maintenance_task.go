package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/replybot/internal/config"
)

const sqlMaintenanceTimeout = 10 * time.Minute

// newSQLMaintenanceTask deletes quick-reply sets cleared longer ago than the
// retention window, then compacts the database file.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", config.TaskSQLMaintenance)

	retention := config.DefaultSuggestionRetention
	if deps.Config != nil && deps.Config.Suggestions.Retention > 0 {
		retention = deps.Config.Suggestions.Retention
	}

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, sqlMaintenanceTimeout)
		defer cancel()
		started := time.Now()

		pruned, err := deps.Store.PruneSuggestionSets(ctx, started.Add(-retention))
		if err != nil {
			log.ErrorContext(ctx, "Failed to prune old quick replies", "error", err)
			return fmt.Errorf("pruning suggestion sets: %w", err)
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "Database compaction failed", "error", err, "pruned_sets", pruned)
			return fmt.Errorf("compacting database: %w", err)
		}

		log.InfoContext(ctx, "Database maintenance finished",
			"pruned_sets", pruned, "retention", retention, "duration", time.Since(started))
		return nil
	}
}
