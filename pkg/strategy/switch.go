package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starlink-awaken/omo-quota/pkg/metrics"
	"github.com/starlink-awaken/omo-quota/pkg/model"
)

// BackupSuffix is appended to the active configuration path to form the
// backup path. Only one backup is kept.
const BackupSuffix = ".backup"

// Recorder persists the name of the active strategy.
type Recorder interface {
	CurrentStrategy() string
	RecordStrategy(name string) error
}

// History stores switch attempts.
type History interface {
	RecordSwitch(ctx context.Context, record *model.SwitchRecord) error
}

// Request asks for a switch to Strategy.
type Request struct {
	Strategy  string
	Automatic bool
}

// Result describes a completed switch.
type Result struct {
	ID         string
	From       string
	To         string
	BackupPath string
	// RestartRequired is always true: running consumers only read the
	// configuration at startup.
	RestartRequired bool
}

// Switcher replaces the active configuration file with a strategy file and
// records the change in the tracker.
//
// No lock is taken. Two processes switching at once may leave the backup
// holding the other's configuration; the active file is still replaced by
// rename and is never half-written.
type Switcher struct {
	catalog    *Catalog
	activePath string
	recorder   Recorder
	history    History
	logger     *slog.Logger
	copyFile   func(src, dst string) error
	now        func() time.Time

	mu    sync.Mutex
	state Stage
}

// NewSwitcher creates a switcher. history may be nil.
func NewSwitcher(catalog *Catalog, activePath string, recorder Recorder, history History, logger *slog.Logger) *Switcher {
	return &Switcher{
		catalog:    catalog,
		activePath: activePath,
		recorder:   recorder,
		history:    history,
		logger:     logger,
		copyFile:   copyFileAtomic,
		now:        time.Now,
		state:      StageIdle,
	}
}

// State returns the stage of the last transaction: Idle before the first
// switch, Done after a success and Failed after any failure.
func (s *Switcher) State() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Switcher) setState(stage Stage) {
	s.mu.Lock()
	s.state = stage
	s.mu.Unlock()
}

// ActivePath returns the active configuration location.
func (s *Switcher) ActivePath() string {
	return s.activePath
}

// BackupPath returns the location of the single retained backup.
func (s *Switcher) BackupPath() string {
	return s.activePath + BackupSuffix
}

// Switch runs the transaction: validate, back up, install, record. Switching
// to the strategy that is already active runs the full sequence as well.
func (s *Switcher) Switch(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		ID:   uuid.New().String(),
		From: s.recorder.CurrentStrategy(),
		To:   req.Strategy,
	}

	err := s.run(res)
	s.finish(ctx, req, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Switcher) run(res *Result) error {
	name := res.To

	s.enter(StageValidating, name)
	src, ok := s.catalog.Path(name)
	if !ok {
		return &SwitchError{Stage: StageValidating, Strategy: name, Kind: ErrUnknownStrategy, ConfigIntact: true}
	}
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", src)
		}
		return &SwitchError{Stage: StageValidating, Strategy: name, Kind: ErrStrategyFileMissing, Err: err, ConfigIntact: true}
	}

	s.enter(StageBackingUp, name)
	hadActive, err := fileExists(s.activePath)
	if err != nil {
		return &SwitchError{Stage: StageBackingUp, Strategy: name, Kind: ErrBackup, Err: err, ConfigIntact: true}
	}
	if hadActive {
		if err := s.copyFile(s.activePath, s.BackupPath()); err != nil {
			return &SwitchError{Stage: StageBackingUp, Strategy: name, Kind: ErrBackup, Err: err, ConfigIntact: true}
		}
		res.BackupPath = s.BackupPath()
	}

	s.enter(StageInstalling, name)
	if err := s.copyFile(src, s.activePath); err != nil {
		restoreErr := s.restore(hadActive)
		if restoreErr != nil {
			s.logger.Error("restore active configuration failed", "path", s.activePath, "error", restoreErr)
			err = errors.Join(err, fmt.Errorf("restore: %w", restoreErr))
		}
		return &SwitchError{Stage: StageInstalling, Strategy: name, Kind: ErrInstall, Err: err, ConfigIntact: restoreErr == nil}
	}

	s.enter(StageRecording, name)
	if err := s.recorder.RecordStrategy(name); err != nil {
		return &SwitchError{
			Stage: StageRecording, Strategy: name, Kind: ErrTrackerRecord, Err: err,
			ConfigIntact: true, ConfigChanged: true,
		}
	}

	s.enter(StageDone, name)
	res.RestartRequired = true
	return nil
}

// restore puts the active configuration back to its pre-install state.
func (s *Switcher) restore(hadActive bool) error {
	if hadActive {
		return s.copyFile(s.BackupPath(), s.activePath)
	}
	if err := os.Remove(s.activePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Switcher) enter(stage Stage, name string) {
	s.setState(stage)
	s.logger.Debug("strategy switch", "stage", string(stage), "strategy", name)
}

func (s *Switcher) finish(ctx context.Context, req Request, res *Result, err error) {
	record := &model.SwitchRecord{
		ID:        res.ID,
		From:      res.From,
		To:        res.To,
		Outcome:   model.SwitchSucceeded,
		Stage:     string(StageDone),
		Automatic: req.Automatic,
		Timestamp: s.now().UTC(),
	}

	var swErr *SwitchError
	if errors.As(err, &swErr) {
		s.setState(StageFailed)
		record.Stage = string(swErr.Stage)
		record.Error = swErr.Error()
		record.Outcome = model.SwitchFailed
		if swErr.Diverged() {
			record.Outcome = model.SwitchDiverged
		}
		s.logger.Error("strategy switch failed",
			"strategy", res.To,
			"stage", string(swErr.Stage),
			"config_intact", swErr.ConfigIntact,
			"error", swErr.Err,
		)
	} else {
		s.logger.Info("strategy switched", "from", res.From, "to", res.To, "automatic", req.Automatic)
	}

	metrics.SwitchTotal.WithLabelValues(res.To, string(record.Outcome)).Inc()

	if s.history == nil {
		return
	}
	if hErr := s.history.RecordSwitch(ctx, record); hErr != nil {
		s.logger.Warn("record switch history", "id", record.ID, "error", hErr)
	}
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

// copyFileAtomic copies src to dst byte-for-byte through a temp file in dst's
// directory, so dst is either the old or the new content.
func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
