package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
)

const outputContentType = "application/x-ndjson"

// Finalizer checksums and archives run output and announces finished runs.
// Every step is optional and none fails the run.
type Finalizer struct {
	Hasher    crawler.Hasher
	Blobs     crawler.BlobStore
	Prefix    string
	Publisher crawler.Publisher
	Topic     string
	Logger    *zap.Logger
}

// Finalize digests and archives s.Output when it is a file, then publishes
// s. It returns s with OutputSHA256 and ArchiveURI filled in.
func (f *Finalizer) Finalize(ctx context.Context, s crawler.RunSummary) crawler.RunSummary {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", s.RunID))

	isFile := s.Output != "" && s.Output != sink.Stdout
	if f.Hasher != nil && isFile {
		sum, err := f.checksum(s.Output)
		if err != nil {
			logger.Warn("checksum output failed", zap.String("output", s.Output), zap.Error(err))
		} else {
			s.OutputSHA256 = sum
		}
	}
	if f.Blobs != nil && isFile {
		uri, err := f.archive(ctx, s)
		if err != nil {
			logger.Warn("archive output failed", zap.String("output", s.Output), zap.Error(err))
		} else {
			s.ArchiveURI = uri
			logger.Info("output archived", zap.String("uri", uri))
		}
	}
	if f.Publisher != nil && f.Topic != "" {
		id, err := f.Publisher.Publish(ctx, f.Topic, s)
		if err != nil {
			logger.Warn("publish run summary failed", zap.String("topic", f.Topic), zap.Error(err))
		} else {
			logger.Debug("run summary published", zap.String("message_id", id))
		}
	}
	return s
}

func (f *Finalizer) checksum(name string) (string, error) {
	file, err := os.Open(filepath.Clean(name))
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = file.Close() }()
	return f.Hasher.HashReader(file)
}

func (f *Finalizer) archive(ctx context.Context, s crawler.RunSummary) (string, error) {
	file, err := os.Open(filepath.Clean(s.Output))
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = file.Close() }()
	name := path.Join(f.Prefix, s.RunID, filepath.Base(s.Output))
	return f.Blobs.PutObject(ctx, name, outputContentType, file)
}
