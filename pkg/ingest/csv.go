package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/correlation"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const utf8BOM = "\ufeff"

// Window is an inclusive start/end time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Stats counts what happened to the files and rows of one load.
type Stats struct {
	Files        int // files with every required column
	FilesSkipped int // missing columns or unreadable
	Rows         int
	Loaded       int
	OutOfWindow  int
	Malformed    int // unparsable values or short rows
	Invalid      int // parsed, but the record could not be built
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.FilesSkipped += o.FilesSkipped
	s.Rows += o.Rows
	s.Loaded += o.Loaded
	s.OutOfWindow += o.OutOfWindow
	s.Malformed += o.Malformed
	s.Invalid += o.Invalid
}

// Loader reads CUCM CDR and CMR exports from a directory.
type Loader struct {
	logger      *logrus.Logger
	concurrency int
}

// NewLoader creates a loader reading up to one file per CPU at a time.
func NewLoader(logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{logger: logger, concurrency: runtime.NumCPU()}
}

// WithConcurrency caps the number of files read in parallel
func (l *Loader) WithConcurrency(n int) *Loader {
	if n > 0 {
		l.concurrency = n
	}
	return l
}

// ListFiles returns the regular files in dir whose name contains ".csv",
// sorted by name.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNoInputFiles, "unable to read input directory", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.Contains(entry.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadCDRs reads every CDR file in dir and returns the records that started
// within the window, in file then row order.
func (l *Loader) LoadCDRs(ctx context.Context, dir string, window Window) ([]*cdr.Record, Stats, error) {
	ctx = correlation.WithRecordKind(ctx, cdr.KindCall.String())
	return load(ctx, l, dir, cdrSchema, func(row []string, cols columnIndex) (*cdr.Record, bool, error) {
		return parseCallRow(row, cols, window)
	})
}

// LoadCMRs reads every CMR file in dir and returns the rows stamped within the
// window, in file then row order.
func (l *Loader) LoadCMRs(ctx context.Context, dir string, window Window) ([]cdr.QualityReport, Stats, error) {
	ctx = correlation.WithRecordKind(ctx, cdr.KindQuality.String())
	return load(ctx, l, dir, cmrSchema, func(row []string, cols columnIndex) (cdr.QualityReport, bool, error) {
		return parseQualityRow(row, cols, window)
	})
}

// rowParser returns the parsed row, whether it is inside the window, and any
// error. Errors skip the row.
type rowParser[T any] func(row []string, cols columnIndex) (T, bool, error)

type fileResult[T any] struct {
	items []T
	stats Stats
}

func load[T any](ctx context.Context, l *Loader, dir string, s schema, parse rowParser[T]) ([]T, Stats, error) {
	log := correlation.LoggerFromContext(ctx, l.logger)

	files, err := ListFiles(dir)
	if err != nil {
		return nil, Stats{}, err
	}
	if len(files) == 0 {
		log.WithField("dir", dir).Warn("No .csv files found")
	}

	results := make([]fileResult[T], len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			items, stats, err := loadFile(gctx, log, path, s, parse)
			if err != nil {
				return err
			}
			results[i] = fileResult[T]{items: items, stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var total Stats
	var out []T
	for _, r := range results {
		total.add(r.stats)
		out = append(out, r.items...)
	}

	log.WithFields(logrus.Fields{
		"dir":           dir,
		"files":         total.Files,
		"files_skipped": total.FilesSkipped,
		"rows":          total.Rows,
		"loaded":        total.Loaded,
		"out_of_window": total.OutOfWindow,
		"malformed":     total.Malformed,
		"invalid":       total.Invalid,
	}).Infof("Loaded %d %s records", total.Loaded, s.kind)

	return out, total, nil
}

// loadFile only returns an error when the context is cancelled. Unreadable
// files and rows are logged and counted.
func loadFile[T any](ctx context.Context, log *logrus.Entry, path string, s schema, parse rowParser[T]) ([]T, Stats, error) {
	var stats Stats
	flog := log.WithField("file", filepath.Base(path))

	f, err := os.Open(path)
	if err != nil {
		flog.WithError(err).Warnf("Unable to load %s file", s.kind)
		stats.FilesSkipped++
		return nil, stats, nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if err != io.EOF {
			flog.WithError(err).Warnf("Unable to load %s file", s.kind)
		}
		stats.FilesSkipped++
		return nil, stats, nil
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	cols, missing := s.locate(header)
	if len(missing) > 0 {
		flog.WithField("missing_columns", strings.Join(missing, ",")).Debugf("Not a %s file, skipping", s.kind)
		stats.FilesSkipped++
		return nil, stats, nil
	}
	stats.Files++
	flog.Infof("Loading %s file", s.kind)

	var items []T
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			flog.WithError(err).WithField("row", line).Warnf("Unable to load %s file, abandoning remaining rows", s.kind)
			break
		}
		stats.Rows++

		item, inWindow, err := parse(row, cols)
		if err != nil {
			if errors.IsErrorType(err, errors.ErrMalformedRow) {
				stats.Malformed++
			} else {
				stats.Invalid++
			}
			flog.WithError(err).WithField("row", line).Warn("Unable to parse row, skipping")
			continue
		}
		if !inWindow {
			stats.OutOfWindow++
			continue
		}
		items = append(items, item)
		stats.Loaded++
	}

	return items, stats, nil
}
