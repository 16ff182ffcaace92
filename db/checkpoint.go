package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default intervals from §4.4: both deliberately prime so the two jobs'
// phases drift apart instead of beating in lockstep.
const (
	DefaultBinaryInterval = 307 * time.Second
	DefaultTextInterval   = 3607 * time.Second
)

// retentionSurvivorAge is the minimum age a text export must have before it
// may be the sole generation protected from retention pruning.
const retentionSurvivorAge = 24 * time.Hour

// CheckpointEngine runs the two independent periodic jobs described in
// §4.4: a binary snapshot job on a short interval with simple count-based
// retention, and a Format 4 text export job on a longer interval whose
// retention additionally guarantees that a generation older than 24 hours
// always survives.
//
// "Binary" here reuses the same Format 4 writer as the text export — full
// wire-format equivalence with a historical MOO binary checkpoint format is
// an explicit non-goal, so there is no independent byte layout to target.
// The two jobs are kept genuinely independent (separate directories,
// intervals, and retention policies) so the schedule and survivor
// guarantees in §4.4 and §8 hold regardless of that shared encoding.
type CheckpointEngine struct {
	mu    sync.Mutex
	store *Store

	binaryDir       string
	textDir         string
	binaryInterval  time.Duration
	textInterval    time.Duration
	binaryRetention int
	textRetention   int

	taskSource TaskSource

	stopCh chan struct{}
	wg     sync.WaitGroup

	lastBinarySave time.Time
	lastTextSave   time.Time
}

// CheckpointConfig holds the recognized checkpoint options from §6.
type CheckpointConfig struct {
	Directory       string
	BinaryInterval  time.Duration
	TextInterval    time.Duration
	BinaryRetention int
	TextRetention   int
}

// DefaultCheckpointConfig returns the documented defaults.
func DefaultCheckpointConfig(dir string) CheckpointConfig {
	return CheckpointConfig{
		Directory:       dir,
		BinaryInterval:  DefaultBinaryInterval,
		TextInterval:    DefaultTextInterval,
		BinaryRetention: 5,
		TextRetention:   3,
	}
}

// NewCheckpointEngine creates a checkpoint engine rooted at cfg.Directory.
// Binary snapshots land in <dir>/snapshots, text exports in <dir>/exports.
func NewCheckpointEngine(store *Store, cfg CheckpointConfig) *CheckpointEngine {
	return &CheckpointEngine{
		store:           store,
		binaryDir:       filepath.Join(cfg.Directory, "snapshots"),
		textDir:         filepath.Join(cfg.Directory, "exports"),
		binaryInterval:  cfg.BinaryInterval,
		textInterval:    cfg.TextInterval,
		binaryRetention: cfg.BinaryRetention,
		textRetention:   cfg.TextRetention,
		stopCh:          make(chan struct{}),
	}
}

// SetTaskSource wires a task source so snapshots also capture queued and
// suspended tasks (see writer_task.go).
func (e *CheckpointEngine) SetTaskSource(ts TaskSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.taskSource = ts
}

// Start launches the two background jobs. A non-positive interval disables
// that job entirely.
func (e *CheckpointEngine) Start() {
	if e.binaryInterval > 0 {
		e.wg.Add(1)
		go e.runLoop(e.binaryInterval, e.Snapshot)
	}
	if e.textInterval > 0 {
		e.wg.Add(1)
		go e.runLoop(e.textInterval, e.Export)
	}
}

// Stop halts both jobs and waits for any in-flight run to finish.
func (e *CheckpointEngine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *CheckpointEngine) runLoop(interval time.Duration, job func() error) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := job(); err != nil {
				fmt.Fprintf(os.Stderr, "checkpoint job error: %v\n", err)
			}
		}
	}
}

// Snapshot performs one binary-snapshot generation and enforces retention.
func (e *CheckpointEngine) Snapshot() error {
	return e.writeGeneration(e.binaryDir, "snapshot", e.binaryRetention, true)
}

// Export performs one text-export generation and enforces the 24-hour
// survivor guarantee alongside plain count retention.
func (e *CheckpointEngine) Export() error {
	return e.writeGeneration(e.textDir, "export", e.textRetention, false)
}

// FinalSnapshot performs a last binary snapshot, intended for shutdown.
// Retention still applies.
func (e *CheckpointEngine) FinalSnapshot() error {
	return e.Snapshot()
}

func (e *CheckpointEngine) writeGeneration(dir, kind string, retention int, guaranteeSurvivor bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.store.Snapshot()
	if len(snap.objects) == 0 {
		// §4.4: never write an empty checkpoint.
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	now := time.Now()
	finalName := fmt.Sprintf("%s-%d.db", kind, now.UnixNano())
	finalPath := filepath.Join(dir, finalName)
	partPath := filepath.Join(dir, fmt.Sprintf(".%s-%s.part", kind, uuid.NewString()))

	f, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create part file: %w", err)
	}

	writer := NewWriter(f, snap)
	if e.taskSource != nil {
		writer.SetTaskSource(e.taskSource)
	}
	if err := writer.WriteDatabase(); err != nil {
		f.Close()
		os.Remove(partPath)
		return fmt.Errorf("write database: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("close part file: %w", err)
	}

	if err := atomicRename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("rename part to final: %w", err)
	}

	if kind == "snapshot" {
		e.lastBinarySave = now
	} else {
		e.lastTextSave = now
	}

	return e.enforceRetention(dir, kind, retention, guaranteeSurvivor, now)
}

type checkpointFile struct {
	path    string
	modTime time.Time
}

func (e *CheckpointEngine) listGenerations(dir, kind string) ([]checkpointFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := kind + "-"
	files := make([]checkpointFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, checkpointFile{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	return files, nil
}

// enforceRetention keeps at most `retention` generations of `kind` in dir.
// When guaranteeSurvivor is set (text exports only), a generation older
// than 24 hours is preserved even if that means evicting a newer kept
// generation instead of it — see §4.4 and §8.
func (e *CheckpointEngine) enforceRetention(dir, kind string, retention int, guaranteeSurvivor bool, now time.Time) error {
	if retention <= 0 {
		return nil
	}

	files, err := e.listGenerations(dir, kind)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	if len(files) <= retention {
		return nil
	}

	candidates := append([]checkpointFile(nil), files[:len(files)-retention]...)
	kept := append([]checkpointFile(nil), files[len(files)-retention:]...)

	if guaranteeSurvivor {
		hasOldSurvivor := false
		for _, f := range kept {
			if now.Sub(f.modTime) >= retentionSurvivorAge {
				hasOldSurvivor = true
				break
			}
		}
		if !hasOldSurvivor {
			for i, c := range candidates {
				if now.Sub(c.modTime) >= retentionSurvivorAge {
					// Spare this generation; evict the newest kept one in
					// its place so the deletion count is unchanged.
					candidates = append(candidates[:i:i], candidates[i+1:]...)
					if len(kept) > 0 {
						newestKept := kept[len(kept)-1]
						kept = kept[:len(kept)-1]
						candidates = append(candidates, newestKept)
					}
					break
				}
			}
		}
	}

	for _, c := range candidates {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale generation %s: %w", c.path, err)
		}
	}
	return nil
}

// LastBinarySave returns the time of the most recent successful snapshot.
func (e *CheckpointEngine) LastBinarySave() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBinarySave
}

// LastTextSave returns the time of the most recent successful text export.
func (e *CheckpointEngine) LastTextSave() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTextSave
}

// atomicRename performs an atomic rename operation.
// On Unix this is atomic; on Windows we need to handle an existing dst.
func atomicRename(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if os.Remove(dst) == nil {
		return os.Rename(src, dst)
	}

	backup := dst + ".bak"
	if os.Rename(dst, backup) == nil {
		if err := os.Rename(src, dst); err == nil {
			os.Remove(backup)
			return nil
		}
		os.Rename(backup, dst)
	}

	return err
}

// DumpToFile writes the live database to a specific file path, e.g. for an
// explicit dump_database() call or a -dump CLI flag.
func (e *CheckpointEngine) DumpToFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	writer := NewWriter(f, e.store.Snapshot())
	if e.taskSource != nil {
		writer.SetTaskSource(e.taskSource)
	}
	if err := writer.WriteDatabase(); err != nil {
		return fmt.Errorf("write database: %w", err)
	}
	return nil
}
