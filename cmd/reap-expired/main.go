// Command reap-expired deletes expired slides once and exits. It is meant for cron jobs
// and for clearing a backlog after the service was down across several reap intervals.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/postgres"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/logging"
)

const runTimeout = time.Minute

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
		dryRun      = flag.Bool("dry-run", false, "Report expired slides without deleting them")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", sanitizeURL(*databaseURL))

	if err := reapExpired(ctx, postgres.NewSlideRepo(pool), time.Now(), *dryRun); err != nil {
		log.Fatalf("Reap failed: %v", err)
	}
}

func reapExpired(ctx context.Context, repo domain.SlideRepository, now time.Time, dryRun bool) error {
	start := time.Now()
	slog.Info("Starting reap", "dry_run", dryRun, "cutoff", now.Format(time.RFC3339))

	if dryRun {
		slides, err := repo.List(ctx)
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}
		expired := reapable(slides, now)
		for _, s := range expired {
			slog.Debug("Expired slide",
				"slide_id", s.ID.String(),
				"title", s.Title,
				"expires_at", s.ExpiresAt.Format(time.RFC3339))
		}
		slog.Info("Reap summary", "total", len(slides), "expired", len(expired), "deleted", 0)
		return nil
	}

	deleted, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired failed: %w", err)
	}

	slog.Info("Reap summary", "deleted", deleted, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// sanitizeURL hides the password of a connection URL for logging.
// reapable returns the slides DeleteExpired would remove at now: those whose expiry
// is strictly before it.
func reapable(slides []domain.Slide, now time.Time) []domain.Slide {
	var out []domain.Slide
	for _, s := range slides {
		if s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	return out
}

func sanitizeURL(url string) string {
	if !strings.Contains(url, "@") {
		return url
	}
	parts := strings.SplitN(url, "@", 2)
	schemeEnd := strings.Index(parts[0], "://")
	creds := parts[0]
	prefix := ""
	if schemeEnd >= 0 {
		prefix = creds[:schemeEnd+3]
		creds = creds[schemeEnd+3:]
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return url
	}
	return prefix + user + ":***@" + parts[1]
}
