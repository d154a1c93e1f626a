// Command cleanup deletes rows in scheduled_tasks, tasks, and
// process_record for process ids matching a pattern (spec.md §6's CLI
// surface). It is meant for clearing out abandoned test/staging data, not
// for normal operation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/delacruz/cliflow-go/internal/config"
)

func main() {
	pattern := flag.String("pattern", "", "SQL LIKE pattern matched against process ids (required)")
	dryRun := flag.Bool("dry-run", false, "count matching rows without deleting them")
	flag.Parse()

	if *pattern == "" {
		fmt.Fprintln(os.Stderr, "cleanup: -pattern is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup: failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup: failed to connect: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup: failed to access connection pool: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if *dryRun {
		if err := reportMatches(ctx, db, *pattern); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := deleteMatches(ctx, db, *pattern); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("cleanup: done")
}

func reportMatches(ctx context.Context, db *gorm.DB, pattern string) error {
	for _, table := range []string{"scheduled_tasks", "tasks", "process_record"} {
		var count int64
		if err := db.WithContext(ctx).Table(table).Where(idColumn(table)+" LIKE ?", pattern).Count(&count).Error; err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		fmt.Printf("%s: %d matching rows\n", table, count)
	}
	return nil
}

func deleteMatches(ctx context.Context, db *gorm.DB, pattern string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// scheduled_tasks and tasks are cleared before process_record since
		// neither carries a foreign key constraint back to it.
		for _, table := range []string{"scheduled_tasks", "tasks", "process_record"} {
			res := tx.Table(table).Where(idColumn(table)+" LIKE ?", pattern).Delete(nil)
			if res.Error != nil {
				return fmt.Errorf("delete from %s: %w", table, res.Error)
			}
			fmt.Printf("%s: deleted %d rows\n", table, res.RowsAffected)
		}
		return nil
	})
}

// idColumn returns the column holding a process id for table, since the
// three tables don't share a common id column name.
func idColumn(table string) string {
	switch table {
	case "scheduled_tasks":
		return "task_instance"
	case "tasks":
		return "process_record_id"
	default:
		return "id"
	}
}
