/*
sweeper.go - Upload directory cleanup

PURPOSE:
  Periodically removes staged uploads older than MaxAge. A successful parse
  deletes its staged file immediately; files left behind by failed parses or
  interrupted requests are collected here.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Sweeps once immediately on start
  - Only regular files directly inside Dir are considered

CONFIGURATION:
  - Interval: How often to sweep (default: 10 minutes)
  - MaxAge: Minimum age of a file before removal (default: 1 hour)

USAGE:
  sweeper := NewUploadSweeper(handler.UploadDir(), log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: Upload stages files into the same directory
*/
package api

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// UploadSweeper deletes stale staged uploads.
type UploadSweeper struct {
	Dir      string
	Interval time.Duration
	MaxAge   time.Duration

	log logrus.FieldLogger
	now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewUploadSweeper creates a sweeper for dir with default timings.
func NewUploadSweeper(dir string, log logrus.FieldLogger) *UploadSweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UploadSweeper{
		Dir:      dir,
		Interval: 10 * time.Minute,
		MaxAge:   time.Hour,
		log:      log.WithField("component", "upload-sweeper"),
		now:      time.Now,
	}
}

// Start begins sweeping. Calling Start on a running sweeper does nothing.
func (s *UploadSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.WithFields(logrus.Fields{"interval": s.Interval, "max_age": s.MaxAge}).Info("Started")
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *UploadSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("Stopped")
}

func (s *UploadSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.Sweep()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep removes every expired file now and returns how many were removed.
func (s *UploadSweeper) Sweep() int {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("Failed to read upload directory")
		}
		return 0
	}

	cutoff := s.now().Add(-s.MaxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("Failed to remove stale upload")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Info("Removed stale uploads")
	}
	return removed
}
