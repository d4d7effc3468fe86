package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMediaFetchFailed means the job's media could not be downloaded for staging.
var ErrMediaFetchFailed = errors.New("media fetch failed")

// StagingDirPrefix starts the name of every per-job staging directory.
const StagingDirPrefix = "broadcast_"

// MediaFetcher downloads a file known to the origin bot.
type MediaFetcher interface {
	Download(ctx context.Context, fileID string, w io.Writer) error
}

type stagedFile struct {
	path string
	name string
}

func (o *Orchestrator) stagingDir(job *Job) string {
	name := StagingDirPrefix + strconv.FormatInt(job.AdminID, 10) + "_" + job.ID
	return filepath.Join(o.cfg.StagingRoot, name)
}

// stage downloads the job's media into dir, which the caller owns and removes.
func stage(ctx context.Context, dir string, p Payload, fetcher MediaFetcher) (*stagedFile, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher for origin bot", ErrMediaFetchFailed)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create staging dir: %v", ErrMediaFetchFailed, err)
	}

	name := uploadName(p)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create staging file: %v", ErrMediaFetchFailed, err)
	}
	if err := fetcher.Download(ctx, p.FileID, f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrMediaFetchFailed, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to write staging file: %v", ErrMediaFetchFailed, err)
	}
	return &stagedFile{path: path, name: name}, nil
}

func uploadName(p Payload) string {
	if p.FileName != "" {
		return filepath.Base(p.FileName)
	}
	switch p.Kind {
	case KindPhoto:
		return "photo.jpg"
	case KindVideo, KindAnimation:
		return string(p.Kind) + ".mp4"
	case KindAudio:
		return "audio.mp3"
	default:
		return "document.bin"
	}
}

// CleanupStaging removes staging directories under root older than maxAge
// unless they belong to a job id in active. It returns how many it removed.
func CleanupStaging(root string, maxAge time.Duration, active []string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read staging root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), StagingDirPrefix) || belongsTo(e.Name(), active) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func belongsTo(name string, active []string) bool {
	for _, id := range active {
		if strings.HasSuffix(name, "_"+id) {
			return true
		}
	}
	return false
}
