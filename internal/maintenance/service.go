// Package maintenance deletes result artifacts once they age past the
// configured retention window.
package maintenance

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Root is the artifact directory to sweep.
	Root string
	// SweepInterval is how often the background loop runs.
	SweepInterval time.Duration
	// RetentionAge is how long artifacts are kept after their last write.
	RetentionAge time.Duration
}

type Service struct {
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time
}

type SweepSummary struct {
	FilesScanned   int   `json:"files_scanned"`
	FilesDeleted   int   `json:"files_deleted"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
	DirsRemoved    int   `json:"dirs_removed"`
	Failures       int   `json:"failures"`
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.SweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "sweep cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "sweep cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// SweepOnce walks the artifact root and deletes every regular file whose
// modification time is older than the retention age, then prunes emptied
// day directories.
func (s *Service) SweepOnce(ctx context.Context) (SweepSummary, error) {
	s.ensureDefaults()
	if s.Config.Root == "" {
		return SweepSummary{}, fmt.Errorf("artifact root is required")
	}

	cutoff := s.Clock().Add(-s.Config.RetentionAge)
	summary := SweepSummary{}

	var emptied []string
	err := filepath.WalkDir(s.Config.Root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			summary.Failures++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != s.Config.Root {
				emptied = append(emptied, path)
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			summary.Failures++
			return nil
		}
		summary.FilesScanned++
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			summary.Failures++
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "failed to delete expired artifact", slog.String("path", path), slog.Any("error", err))
			}
			return nil
		}
		summary.FilesDeleted++
		summary.BytesReclaimed += info.Size()
		return nil
	})
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("walk artifact root: %w", err)
	}

	// Deepest directories first so nested day dirs go before their parents.
	for i := len(emptied) - 1; i >= 0; i-- {
		if removeIfEmpty(emptied[i]) {
			summary.DirsRemoved++
		}
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepFilesDeletedTotal.Add(float64(summary.FilesDeleted))
	sweepBytesReclaimedTotal.Add(float64(summary.BytesReclaimed))
	return summary, nil
}

func removeIfEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(path) == nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.SweepInterval <= 0 {
		s.Config.SweepInterval = time.Hour
	}
	if s.Config.RetentionAge <= 0 {
		s.Config.RetentionAge = 30 * 24 * time.Hour
	}
}
