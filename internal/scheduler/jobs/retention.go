package jobs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/lendops/tapekpi/pkg/logger"
)

// ArchiveRetention deletes archived raw tapes older than the retention
// window from the local archive directory.
type ArchiveRetention struct {
	log       *logger.Logger
	dir       string
	retention time.Duration
	schedule  string
}

func NewArchiveRetention(log *logger.Logger, dir string, retention time.Duration, schedule string) *ArchiveRetention {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if schedule == "" {
		schedule = "0 0 4 * * 0" // weekly, Sunday 04:00
	}
	return &ArchiveRetention{log: log, dir: dir, retention: retention, schedule: schedule}
}

func (j *ArchiveRetention) Name() string     { return "archive_retention" }
func (j *ArchiveRetention) Schedule() string { return j.schedule }

func (j *ArchiveRetention) Run(_ context.Context) error {
	if j.dir == "" {
		return nil
	}
	cutoff := time.Now().Add(-j.retention)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, entry.Name())); err != nil {
			j.log.WithError(err).WithField("file", entry.Name()).Warn("retention delete failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.log.WithFields(map[string]interface{}{
			"removed": removed,
			"cutoff":  cutoff.Format("2006-01-02"),
		}).Info("archive retention applied")
	}
	return nil
}
