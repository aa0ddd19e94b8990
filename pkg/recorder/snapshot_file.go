package recorder

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
)

// DefaultPath is where snapshots are written when no destination is given.
const DefaultPath = "/tmp/snapshot.json"

// FileOptions configures how snapshot files are written.
type FileOptions struct {
	CompressionType CompressionType
}

// DefaultFileOptions returns the options for path: zstd when it ends in ZstdExtension.
func DefaultFileOptions(path string) FileOptions {
	return FileOptions{
		CompressionType: CompressionForPath(path),
	}
}

// Save captures the process behind in and writes its document to path, replacing any existing
// file. Nothing is written unless the whole capture succeeds.
func Save(ctx context.Context, in snapshot.Inspector, path string, options FileOptions) (snapshot.Stats, error) {
	if err := CheckWritable(path); err != nil {
		return snapshot.Stats{}, err
	}

	s, err := snapshot.Capture(ctx, in)
	if err != nil {
		return snapshot.Stats{}, err
	}
	if err := WriteFile(path, snapshot.NewDocument(s), options); err != nil {
		return snapshot.Stats{}, err
	}

	logger.Get(ctx).Info("Snapshot saved",
		zap.String("path", path), zap.Stringer("compression", options.CompressionType))
	return s.Stats(), nil
}

// CheckWritable fails if a file cannot be created at path.
func CheckWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "destination directory of %s is not usable", path)
	}
	if !info.IsDir() {
		return errors.Errorf("destination %s: %s is not a directory", path, dir)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return errors.Errorf("destination %s is a directory", path)
	}
	if err := checkDirWritable(dir); err != nil {
		return errors.Wrapf(err, "destination %s is not writable", path)
	}
	return nil
}

// WriteFile writes doc to path atomically: readers of path see either the previous file or
// the complete new one.
func WriteFile(path string, doc *snapshot.Document, options FileOptions) (retErr error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %s failed", path)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bufWriter := bufio.NewWriterSize(tmp, 1<<20)
	compressedWriter, err := newCompressedWriter(bufWriter, options.CompressionType)
	if err != nil {
		return err
	}
	if err := doc.Encode(compressedWriter); err != nil {
		return errors.Wrapf(err, "encoding snapshot %s failed", path)
	}
	if err := compressedWriter.Close(); err != nil {
		return errors.Wrapf(err, "compressing snapshot %s failed", path)
	}
	if err := bufWriter.Flush(); err != nil {
		return errors.Wrapf(err, "writing snapshot %s failed", path)
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "syncing snapshot %s failed", path)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return errors.Wrapf(err, "setting mode of snapshot %s failed", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing snapshot %s failed", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "replacing snapshot %s failed", path)
	}
	return nil
}

// ReadFile reads the document stored at path. Compression is detected from the content, so
// the path suffix does not need to match the options the file was written with.
func ReadFile(path string) (*snapshot.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	bufReader := bufio.NewReader(f)
	reader, err := newCompressedReader(bufReader, DetectCompression(bufReader))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	doc, err := snapshot.DecodeDocument(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s failed", path)
	}
	return doc, nil
}
