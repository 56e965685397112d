// Package staging decodes inline base64 image payloads to files under a
// managed temporary directory, so they can ride the same transfer path as
// local files. Cleanup is scoped per upload; a periodic sweep exists only as
// a backstop against leaked files.
package staging

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	managedDirName    = "dealergate-staging"
	DefaultSweepAfter = 1 * time.Hour
)

// extByMIME is the explicit MIME to extension table. Anything unlisted gets
// the generic image extension; the remote API keys on content type, not on
// the extension.
var extByMIME = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

const defaultExt = ".img"

// Asset is one staged file. The path is owned by the Store for the duration
// of the upload that requested it; callers release it through Cleanup.
type Asset struct {
	Path string
	Size int64
}

// Input is one base64 payload to stage.
type Input struct {
	Data     string
	MimeType string
	Filename string
}

// ItemResult records one Input's staging outcome inside a batch.
type ItemResult struct {
	Index int
	Path  string
	Size  int64
	Err   string
}

// BatchResult aggregates StageBatch. Paths holds only the successful stages,
// in input order.
type BatchResult struct {
	Paths   []string
	Results []ItemResult
	Staged  int
}

// CleanupResult reports what Cleanup removed and what it could not.
type CleanupResult struct {
	Cleaned int
	Errors  []string
}

// Store manages the process-scoped staging directory.
type Store struct {
	parent string // directory the managed dir is created under
	logger *slog.Logger

	mu  sync.Mutex
	dir string // managed dir, created lazily
}

// NewStore builds a Store rooted under parent, or under os.TempDir() when
// parent is empty. The managed directory itself is created on first use.
func NewStore(logger *slog.Logger, parent string) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if parent == "" {
		parent = os.TempDir()
	}
	return &Store{
		parent: parent,
		logger: logger.WithGroup("staging"),
	}
}

// managedDir lazily creates the staging directory. If creation fails the
// Store degrades to the parent temp root so staging still works; Cleanup's
// containment check then guards the parent instead.
func (s *Store) managedDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		return s.dir
	}

	dir := filepath.Join(s.parent, managedDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.logger.Warn("Could not create staging directory, falling back to temp root",
			"dir", dir, "error", err)
		dir = s.parent
	}
	s.dir = dir
	return s.dir
}

// Stage decodes a base64 payload to a file and returns its path and size.
// Any data-URI scheme prefix on the payload is stripped before decoding.
func (s *Store) Stage(payload, mimeType, filenameHint string) (*Asset, error) {
	raw, err := decodeBase64Payload(payload)
	if err != nil {
		return nil, err
	}

	name := stagedName(filenameHint, mimeType)
	path := filepath.Join(s.managedDir(), name)

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, errors.Wrapf(err, "could not write staged asset %s", path)
	}

	s.logger.Debug("Staged asset", "path", path, "size", len(raw))
	return &Asset{Path: path, Size: int64(len(raw))}, nil
}

// StageBatch stages each input independently; one bad payload never aborts
// the rest.
func (s *Store) StageBatch(items []Input) *BatchResult {
	result := &BatchResult{}
	for i, item := range items {
		asset, err := s.Stage(item.Data, item.MimeType, item.Filename)
		if err != nil {
			result.Results = append(result.Results, ItemResult{Index: i, Err: err.Error()})
			continue
		}
		result.Paths = append(result.Paths, asset.Path)
		result.Results = append(result.Results, ItemResult{Index: i, Path: asset.Path, Size: asset.Size})
		result.Staged++
	}
	return result
}

// Cleanup deletes the given paths. A path outside the managed directory is a
// no-op, never a deletion; a path already gone is a no-op too. Failures are
// recorded, not raised.
func (s *Store) Cleanup(paths []string) CleanupResult {
	var result CleanupResult
	dir := s.managedDir()

	for _, path := range paths {
		if !s.contains(dir, path) {
			s.logger.Warn("Refusing to clean path outside staging directory", "path", path)
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, path+": "+err.Error())
			continue
		}
		result.Cleaned++
	}
	return result
}

// Release removes a single staged asset, for use on every exit path of an
// upload attempt.
func (s *Store) Release(asset *Asset) {
	if asset == nil {
		return
	}
	s.Cleanup([]string{asset.Path})
}

func (s *Store) contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Sweep removes staged files older than the cutoff. It is the backstop for
// files leaked across process restarts, not the primary cleanup mechanism.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	dir := s.managedDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(err, "could not read staging directory")
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Swept leaked staged assets", "removed", removed, "older_than", olderThan)
	}
	return removed, nil
}

// StartSweeper runs Sweep on an interval until the context is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepAfter
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(interval); err != nil {
					s.logger.Warn("Staging sweep failed", "error", err)
				}
			}
		}
	}()
}

// decodeBase64Payload strips any data-URI prefix and decodes. Payloads with
// embedded whitespace (pasted from UIs) are tolerated.
func decodeBase64Payload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, "base64,"); i >= 0 {
			payload = payload[i+len("base64,"):]
		}
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "payload is not valid base64")
	}
	return raw, nil
}

func stagedName(hint, mimeType string) string {
	ext, ok := extByMIME[strings.ToLower(strings.TrimSpace(mimeType))]
	if !ok {
		ext = defaultExt
	}

	// Filenames are randomized so concurrent batches sharing the directory
	// never collide; the hint survives only as a sanitized prefix.
	base := sanitizeHint(hint)
	id := uuid.NewString()
	if base == "" {
		return id + ext
	}
	return base + "-" + id + ext
}

func sanitizeHint(hint string) string {
	hint = filepath.Base(hint)
	hint = strings.TrimSuffix(hint, filepath.Ext(hint))
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
