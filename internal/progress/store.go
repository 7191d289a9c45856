package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkpointVersion gates compatibility of persisted files. A checkpoint with
// any other version is discarded on load.
const checkpointVersion = "1.0"

// DefaultSaveInterval is the number of recorded outcomes between periodic
// checkpoint writes.
const DefaultSaveInterval = 10

// ProcessedBookmark records one bookmark that made it through the pipeline.
// Error is set when the summary was degraded (the page fetched but the
// summarizer failed); such records still count as processed but are eligible
// for another attempt in check-error runs.
type ProcessedBookmark struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	ProcessedAt time.Time `json:"processed_at"`
	FilePath    string    `json:"file_path,omitempty"`
	FolderPath  []string  `json:"folder_path,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// FailedBookmark records one bookmark whose fetch failed for good.
type FailedBookmark struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	FailedAt   time.Time `json:"failed_at"`
	Error      string    `json:"error"`
	FolderPath []string  `json:"folder_path,omitempty"`
}

// Position is the traversal coordinate recorded before each attempt. On crash
// it points at an item that may or may not have completed, so resume logic
// must tolerate reprocessing that one item.
type Position struct {
	FolderPath    []string `json:"folder_path"`
	BookmarkIndex int      `json:"bookmark_index"`
	TotalInFolder int      `json:"total_in_folder"`
}

// Statistics summarizes a run for reporting and for the status endpoint.
type Statistics struct {
	TotalBookmarks int       `json:"total_bookmarks"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	SkippedCount   int       `json:"skipped_count"`
	StartTime      time.Time `json:"start_time"`
	LastUpdate     time.Time `json:"last_update"`
}

// checkpointFile is the on-disk shape of a checkpoint.
type checkpointFile struct {
	Version       string              `json:"version"`
	Timestamp     time.Time           `json:"timestamp"`
	BookmarksFile string              `json:"bookmarks_file"`
	ConfigHash    string              `json:"config_hash"`
	Processed     []ProcessedBookmark `json:"processed_urls"`
	Failed        []FailedBookmark    `json:"failed_urls"`
	Position      *Position           `json:"current_position,omitempty"`
	Statistics    *Statistics         `json:"statistics,omitempty"`
}

// Store is the durable checkpoint for a run. All methods are safe for
// concurrent use; fetch completions from many workers record outcomes through
// the same Store.
type Store struct {
	mu sync.Mutex

	path          string
	bookmarksFile string
	configHash    string
	saveInterval  int
	lastSaveCount int

	processed []ProcessedBookmark
	failed    []FailedBookmark
	position  *Position
	stats     *Statistics

	logger *zap.Logger
	now    func() time.Time
}

// NewStore builds a Store persisting to path. bookmarksFile and configHash
// identify the run; a loaded checkpoint recorded against different values is
// rejected as incompatible.
func NewStore(path, bookmarksFile, configHash string, saveInterval int, logger *zap.Logger) *Store {
	if saveInterval <= 0 {
		saveInterval = DefaultSaveInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:          path,
		bookmarksFile: bookmarksFile,
		configHash:    configHash,
		saveInterval:  saveInterval,
		logger:        logger,
		now:           time.Now,
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

// Load reads the checkpoint file if present. It returns true when a
// compatible checkpoint was loaded. A missing file or an incompatible one
// (wrong version, config hash, or bookmarks file; corrupt JSON) returns
// false with a nil error and the caller proceeds as if no checkpoint
// existed. Read failures other than absence, such as permission errors,
// are returned so the caller can abort instead of silently starting over.
func (s *Store) Load() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no checkpoint file", zap.String("path", s.path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("checkpoint file is not valid JSON, ignoring",
			zap.String("path", s.path), zap.Error(err))
		return false, nil
	}
	if cp.Version != checkpointVersion {
		s.logger.Warn("incompatible checkpoint version, ignoring",
			zap.String("version", cp.Version))
		return false, nil
	}
	if cp.ConfigHash != s.configHash {
		s.logger.Warn("checkpoint config hash mismatch, ignoring")
		return false, nil
	}
	if cp.BookmarksFile != s.bookmarksFile {
		s.logger.Warn("checkpoint recorded a different bookmarks file, ignoring",
			zap.String("recorded", cp.BookmarksFile))
		return false, nil
	}

	s.processed = cp.Processed
	s.failed = cp.Failed
	s.position = cp.Position
	s.stats = cp.Statistics

	s.logger.Info("checkpoint loaded",
		zap.Int("processed", len(s.processed)),
		zap.Int("failed", len(s.failed)))
	return true, nil
}

// Save persists the full in-memory state. Unless force is set, the write is
// skipped until at least saveInterval outcomes have been recorded since the
// last save. The file is written to a temporary sibling and renamed into
// place, so a crash mid-write leaves the previous checkpoint intact. Returns
// true when a write actually happened.
func (s *Store) Save(force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(force)
}

func (s *Store) saveLocked(force bool) (bool, error) {
	total := len(s.processed) + len(s.failed)
	if !force && total-s.lastSaveCount < s.saveInterval {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, fmt.Errorf("create checkpoint directory: %w", err)
	}

	cp := checkpointFile{
		Version:       checkpointVersion,
		Timestamp:     s.now(),
		BookmarksFile: s.bookmarksFile,
		ConfigHash:    s.configHash,
		Processed:     s.processed,
		Failed:        s.failed,
		Position:      s.position,
		Statistics:    s.stats,
	}
	if cp.Processed == nil {
		cp.Processed = []ProcessedBookmark{}
	}
	if cp.Failed == nil {
		cp.Failed = []FailedBookmark{}
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return false, fmt.Errorf("replace checkpoint file: %w", err)
	}

	s.lastSaveCount = total
	checkpointSaves.Inc()
	s.logger.Debug("checkpoint saved",
		zap.Int("processed", len(s.processed)),
		zap.Int("failed", len(s.failed)))
	return true, nil
}

// AddProcessed records a successful outcome and triggers a periodic save.
// summaryErr is non-empty when the written summary is degraded.
func (s *Store) AddProcessed(url, title, filePath string, folderPath []string, summaryErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed = append(s.processed, ProcessedBookmark{
		URL:         url,
		Title:       title,
		ProcessedAt: s.now(),
		FilePath:    filePath,
		FolderPath:  folderPath,
		Error:       summaryErr,
	})
	s.periodicSaveLocked()
}

// AddFailed records a failed outcome and triggers a periodic save.
func (s *Store) AddFailed(url, title, errText string, folderPath []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed = append(s.failed, FailedBookmark{
		URL:        url,
		Title:      title,
		FailedAt:   s.now(),
		Error:      errText,
		FolderPath: folderPath,
	})
	s.periodicSaveLocked()
}

func (s *Store) periodicSaveLocked() {
	if _, err := s.saveLocked(false); err != nil {
		// A failed periodic save is not fatal; the next periodic or final
		// save retries.
		s.logger.Warn("periodic checkpoint save failed", zap.Error(err))
	}
}

// Promote moves url out of the failure set after a check-error retry fetched
// successfully. Matching failure records are removed and a success record is
// written, or updated in place when one already exists. summaryErr carries a
// degraded-summary error for the new record; when empty the record becomes a
// clean success. Calling Promote twice for the same url is safe.
func (s *Store) Promote(url, title, filePath string, folderPath []string, summaryErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.failed[:0]
	for _, f := range s.failed {
		if f.URL != url {
			kept = append(kept, f)
		}
	}
	s.failed = kept

	for i := range s.processed {
		if s.processed[i].URL == url {
			s.processed[i].Error = summaryErr
			s.processed[i].ProcessedAt = s.now()
			s.processed[i].FilePath = filePath
			s.processed[i].FolderPath = folderPath
			s.periodicSaveLocked()
			return
		}
	}

	s.processed = append(s.processed, ProcessedBookmark{
		URL:         url,
		Title:       title,
		ProcessedAt: s.now(),
		FilePath:    filePath,
		FolderPath:  folderPath,
		Error:       summaryErr,
	})
	s.periodicSaveLocked()
}

// IsSuccess reports whether url has a clean processed record.
func (s *Store) IsSuccess(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.processed {
		if p.URL == url && p.Error == "" {
			return true
		}
	}
	return false
}

// IsError reports whether url is in the error state: a failure record or a
// processed record carrying a degraded-summary error.
func (s *Store) IsError(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.failed {
		if f.URL == url {
			return true
		}
	}
	for _, p := range s.processed {
		if p.URL == url && p.Error != "" {
			return true
		}
	}
	return false
}

// SuccessURLs returns the set of urls processed without error. Resume mode
// skips exactly this set.
func (s *Store) SuccessURLs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(s.processed))
	for _, p := range s.processed {
		if p.Error == "" {
			set[p.URL] = struct{}{}
		}
	}
	return set
}

// ErrorURLs returns the set of urls in an error state: failed fetches plus
// processed records carrying a degraded-summary error. Check-error mode
// processes exactly this set.
func (s *Store) ErrorURLs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(s.failed))
	for _, f := range s.failed {
		set[f.URL] = struct{}{}
	}
	for _, p := range s.processed {
		if p.Error != "" {
			set[p.URL] = struct{}{}
		}
	}
	return set
}

// Counts reports the current number of processed and failed records.
func (s *Store) Counts() (processed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed), len(s.failed)
}

// UpdatePosition records the traversal coordinate about to be attempted.
// It is called before each attempt, never after.
func (s *Store) UpdatePosition(folderPath []string, index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.position = &Position{
		FolderPath:    append([]string(nil), folderPath...),
		BookmarkIndex: index,
		TotalInFolder: total,
	}
}

// ResumePosition returns a copy of the last recorded position, or nil when
// no position was recorded.
func (s *Store) ResumePosition() *Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil {
		return nil
	}
	cp := *s.position
	cp.FolderPath = append([]string(nil), s.position.FolderPath...)
	return &cp
}

// StartIndex reports the bookmark index to fast-skip to within folderPath,
// based on the recorded position. The recorded path matches when it equals
// folderPath or is a trailing suffix of it (the same folder name can occur
// at several depths). This is an optimization only; per-url membership
// checks remain authoritative.
func (s *Store) StartIndex(folderPath []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil {
		return 0
	}
	rec := s.position.FolderPath
	if len(rec) == 0 || len(rec) > len(folderPath) {
		return 0
	}
	tail := folderPath[len(folderPath)-len(rec):]
	for i := range rec {
		if tail[i] != rec[i] {
			return 0
		}
	}
	return s.position.BookmarkIndex
}

// InitStatistics resets run statistics against the current record counts.
func (s *Store) InitStatistics(totalBookmarks int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.stats = &Statistics{
		TotalBookmarks: totalBookmarks,
		ProcessedCount: len(s.processed),
		FailedCount:    len(s.failed),
		StartTime:      now,
		LastUpdate:     now,
	}
}

// UpdateStatistics refreshes the derived counters and the last-update stamp.
func (s *Store) UpdateStatistics(skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats == nil {
		return
	}
	s.stats.ProcessedCount = len(s.processed)
	s.stats.FailedCount = len(s.failed)
	s.stats.SkippedCount = skipped
	s.stats.LastUpdate = s.now()
}

// GetStatistics returns a copy of the current statistics, or nil before
// InitStatistics or a checkpoint load populated them.
func (s *Store) GetStatistics() *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats == nil {
		return nil
	}
	cp := *s.stats
	return &cp
}

// Clear deletes the checkpoint file and resets all in-memory state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", s.path, err)
	}
	s.processed = nil
	s.failed = nil
	s.position = nil
	s.stats = nil
	s.lastSaveCount = 0
	return nil
}
