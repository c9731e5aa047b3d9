// Package scan runs the two phase pipeline over one archive: a parallel
// signature probe over every member, then a parallel deep extraction over
// the DICOM candidates.
package scan

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
	"github.com/ZanzyTHEbar/dicomzip/dzip/classify"
	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
	"github.com/ZanzyTHEbar/dicomzip/dzip/vendor"
)

const tracerName = "github.com/ZanzyTHEbar/dicomzip/dzip/scan"

// Source is an opened archive. *archive.Reader satisfies it.
type Source interface {
	Path() string
	Size() int64
	Members() []archive.Member
	ReadPrefix(i, n int) ([]byte, error)
	Open(i int) (io.ReadCloser, error)
}

// Scanner scans one archive. Run and MRNs may be called more than once.
type Scanner struct {
	src        Source
	opts       Options
	classifier *classify.Classifier
	extractor  *extract.Extractor
	logger     zerolog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	readTime   time.Duration
	closer     io.Closer
}

// Open opens the archive at path and returns a scanner that owns it.
// Open failures are *archive.Error.
func Open(path string, opts Options, logger zerolog.Logger) (*Scanner, error) {
	start := time.Now()

	var (
		r   *archive.Reader
		err error
	)
	if opts.InMemory {
		r, err = archive.OpenInMemory(path)
	} else {
		r, err = archive.Open(path)
	}
	if err != nil {
		return nil, err
	}

	s, err := New(r, opts, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	s.readTime = time.Since(start)
	s.closer = r
	return s, nil
}

// New returns a scanner over an already opened source
func New(src Source, opts Options, logger zerolog.Logger) (*Scanner, error) {
	vendors, err := vendor.DefaultRegistry(opts.VendorCatalogs...)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		src:        src,
		opts:       opts,
		classifier: classify.New(src, opts.IgnorePatterns),
		extractor:  extract.New(vendors, opts.Parse, logger),
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// WithMetrics makes the scanner record into m
func (s *Scanner) WithMetrics(m *Metrics) *Scanner {
	s.metrics = m
	return s
}

// Close releases the archive if the scanner opened it
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// Run classifies every member and extracts every candidate
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	workers := s.opts.workers()
	logger := s.logger.With().
		Str("run", runID).
		Str("archive", s.src.Path()).
		Logger()

	ctx, span := s.tracer.Start(ctx, "scan.Run", trace.WithAttributes(
		attribute.String("dicomzip.archive", s.src.Path()),
		attribute.String("dicomzip.run_id", runID),
		attribute.Int("dicomzip.workers", workers),
	))
	defer span.End()

	start := time.Now()
	members := s.src.Members()

	report := &Report{
		RunID:       runID,
		Archive:     s.src.Path(),
		ArchiveSize: s.src.Size(),
		Workers:     workers,
		Ordered:     s.opts.PreserveOrder,
		Modalities:  NewModalityIndex(),
		Studies:     NewStudyIndex(),
	}
	report.Stats.Members = len(members)
	report.Stats.ReadDuration = s.readTime
	for _, m := range members {
		report.Stats.CompressedBytes += m.CompressedSize
		report.Stats.UncompressedBytes += m.UncompressedSize
	}

	logger.Debug().Int("members", len(members)).Int("workers", workers).Msg("scan started")

	detectStart := time.Now()
	candidates, err := s.classifyAll(ctx, members, workers)
	report.Stats.DetectDuration = time.Since(detectStart)
	if err != nil {
		s.observeScan("cancelled")
		span.RecordError(err)
		return nil, err
	}
	report.Candidates = candidates
	s.observePhase("detect", report.Stats.DetectDuration)

	positives := make([]classify.Candidate, 0)
	for _, c := range candidates {
		if c.IsDICOM {
			positives = append(positives, c)
			continue
		}
		if c.Reason == classify.ReasonReadError {
			logger.Warn().Err(c.Err).Str("member", c.Name).Msg("member unreadable during probe")
		}
		if s.metrics != nil {
			s.metrics.SkippedTotal.WithLabelValues(string(c.Reason)).Inc()
		}
	}
	report.Stats.Candidates = len(positives)
	report.Stats.Skipped = len(members) - len(positives)

	extractStart := time.Now()
	records, counts, err := s.extractAll(ctx, positives, workers)
	report.Stats.ExtractDuration = time.Since(extractStart)
	if err != nil {
		s.observeScan("cancelled")
		span.RecordError(err)
		return nil, err
	}
	s.observePhase("extract", report.Stats.ExtractDuration)

	report.Records = records
	report.Stats.Processed = int(counts.processed.Load())
	report.Stats.Errors = int(counts.failed.Load())
	report.Stats.Degraded = int(counts.degraded.Load())
	report.Stats.ParsedBytes = counts.bytes.Load()

	for i, rec := range records {
		report.Modalities.Add(rec.Modality, uint32(i))
		report.Studies.Add(rec.StudyInstanceUID, rec.SeriesInstanceUID)
	}

	report.Stats.TotalDuration = time.Since(start) + s.readTime
	s.observePhase("total", report.Stats.TotalDuration)
	s.observeScan("completed")

	span.SetAttributes(
		attribute.Int("dicomzip.members", report.Stats.Members),
		attribute.Int("dicomzip.processed", report.Stats.Processed),
		attribute.Int("dicomzip.errors", report.Stats.Errors),
	)
	s.logPerformanceStats(logger, report.Stats)
	return report, nil
}

// MRNs runs a scan and returns only the distinct Patient IDs
func (s *Scanner) MRNs(ctx context.Context) ([]string, error) {
	report, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	return report.MRNs(), nil
}

func (s *Scanner) classifyAll(ctx context.Context, members []archive.Member, workers int) ([]classify.Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "scan.classify")
	defer span.End()

	candidates := make([]classify.Candidate, len(members))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, m := range members {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			candidates[i] = s.classifier.Classify(m)
			if s.metrics != nil {
				s.metrics.MembersTotal.Inc()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return candidates, nil
}

type extractCounts struct {
	processed atomic.Int64
	failed    atomic.Int64
	degraded  atomic.Int64
	bytes     atomic.Int64
}

func (s *Scanner) extractAll(ctx context.Context, positives []classify.Candidate, workers int) ([]extract.Record, *extractCounts, error) {
	ctx, span := s.tracer.Start(ctx, "scan.extract", trace.WithAttributes(
		attribute.Int("dicomzip.candidates", len(positives)),
	))
	defer span.End()

	counts := &extractCounts{}
	var (
		records []extract.Record
		mu      sync.Mutex
	)
	if s.opts.PreserveOrder {
		records = make([]extract.Record, len(positives))
	} else {
		records = make([]extract.Record, 0, len(positives))
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, c := range positives {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := s.extractor.ExtractMember(s.src, c.Member)
			counts.tally(rec)
			s.observeRecord(rec)

			if s.opts.PreserveOrder {
				records[i] = rec
				return nil
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	return records, counts, nil
}

func (c *extractCounts) tally(rec extract.Record) {
	c.bytes.Add(rec.BytesRead)
	switch rec.Status {
	case extract.StatusFailed:
		c.failed.Add(1)
	case extract.StatusDegraded:
		c.degraded.Add(1)
		c.processed.Add(1)
	default:
		c.processed.Add(1)
	}
}

func (s *Scanner) observeRecord(rec extract.Record) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordsTotal.WithLabelValues(string(rec.Status)).Inc()
	s.metrics.BytesParsed.Add(float64(rec.BytesRead))
}

func (s *Scanner) observePhase(phase string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (s *Scanner) observeScan(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ScansTotal.WithLabelValues(result).Inc()
	s.metrics.Workers.Set(float64(s.opts.workers()))
}

// logPerformanceStats logs scan throughput at debug level
func (s *Scanner) logPerformanceStats(logger zerolog.Logger, stats Stats) {
	tu := common.NewTimeUtils()
	logger.Debug().
		Int("members", stats.Members).
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Int("degraded", stats.Degraded).
		Str("detect", tu.FormatDuration(stats.DetectDuration)).
		Str("extract", tu.FormatDuration(stats.ExtractDuration)).
		Float64("files_per_sec", stats.FilesPerSecond()).
		Msg("scan completed")
}
