// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// LogFileName is the file written inside the log directory.
const LogFileName = "namecom.log"

// OpenLogFile creates dir when needed and opens LogFileName inside it for appending.
func OpenLogFile(fs afero.Fs, dir string) (afero.File, error) {
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, LogFileName)
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return f, nil
}

// New returns a zap backed logger configured from opts. When logDir is not
// empty every line is also appended to LogFileName inside it; the returned
// closer releases that file.
func New(fs afero.Fs, opts *zap.Options, logDir string) (logr.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if logDir != "" {
		f, err := OpenLogFile(fs, logDir)
		if err != nil {
			return logr.Discard(), nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	return zap.New(zap.UseFlagOptions(opts), zap.WriteTo(out)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
