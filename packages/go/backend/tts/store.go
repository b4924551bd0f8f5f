package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrAudioNotFound is returned for unknown or expired clip ids.
var ErrAudioNotFound = errors.New("audio not found")

// DefaultAudioTTL bounds how long generated clips stay retrievable.
const DefaultAudioTTL = time.Hour

// Clip is an opened stored clip. Callers must close File.
type Clip struct {
	ID      string
	Format  string
	File    *os.File
	ModTime time.Time
	Size    int64
}

// FileStore keeps synthesized clips on local disk under random ids.
type FileStore struct {
	dir string
	ttl time.Duration
}

// NewFileStore creates dir if needed. A non-positive ttl falls back to
// DefaultAudioTTL.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("audio store: directory is required")
	}
	if ttl <= 0 {
		ttl = DefaultAudioTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio store: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

// Save writes the clip and returns its id.
func (s *FileStore) Save(ctx context.Context, audio Audio) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if audio.Format == "" {
		audio.Format = FormatWAV
	}
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+"."+audio.Format)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, audio.Data, 0o644); err != nil {
		return "", fmt.Errorf("audio store: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("audio store: rename: %w", err)
	}
	return id, nil
}

// Open looks up a clip by id. Ids that are not UUIDs never touch the disk.
func (s *FileStore) Open(id string) (Clip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Clip{}, ErrAudioNotFound
	}
	for _, format := range []string{FormatWAV, FormatMP3} {
		f, err := os.Open(filepath.Join(s.dir, id+"."+format))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Clip{}, fmt.Errorf("audio store: open: %w", err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return Clip{}, fmt.Errorf("audio store: stat: %w", err)
		}
		return Clip{ID: id, Format: format, File: f, ModTime: info.ModTime(), Size: info.Size()}, nil
	}
	return Clip{}, ErrAudioNotFound
}

// Cleanup removes clips older than the store TTL and reports how many went.
// Leftover .tmp files from interrupted saves age out the same way.
func (s *FileStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("audio store: list: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("audio store: remove: %w", err)
		}
		removed++
	}
	return removed, nil
}
