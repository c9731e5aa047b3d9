// Package sorter files archives into per-patient directories using the MRN
// scan. Sources are copied, never moved or modified.
package sorter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/zeebo/blake3"

	"github.com/ZanzyTHEbar/dicomzip/dzip/common"
	"github.com/ZanzyTHEbar/dicomzip/dzip/scan"
)

// Outcome describes what happened to one archive
type Outcome string

const (
	OutcomeSorted    Outcome = "sorted"
	OutcomeDuplicate Outcome = "duplicate" // identical copy already filed
	OutcomeNoMRN     Outcome = "no-mrn"
	OutcomeFailed    Outcome = "failed"
)

// maxSuffix bounds the collision search in one directory
const maxSuffix = 9999

// Options configures a Sorter
type Options struct {
	OutDir  string
	Dedupe  bool // skip archives whose content is already present in the patient directory
	Workers int  // archives sorted concurrently
	Scan    scan.Options
}

// Result is the outcome for one source archive
type Result struct {
	Archive string
	MRN     string
	Others  []string // further MRNs found in the archive
	Dest    string
	Outcome Outcome
	Err     error
}

// Summary aggregates a Sort call. Results follow the input order.
type Summary struct {
	Results    []Result
	Sorted     int
	Duplicates int
	NoMRN      int
	Failed     int
}

// Sorter copies archives into OutDir/<MRN>/
type Sorter struct {
	opts   Options
	logger zerolog.Logger
	mu     sync.Mutex // serialises dedupe checks against placement
}

// New returns a Sorter writing under opts.OutDir
func New(opts Options, logger zerolog.Logger) (*Sorter, error) {
	if opts.OutDir == "" {
		return nil, errors.New("sorter: output directory is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("sorter: create output directory: %w", err)
	}
	return &Sorter{opts: opts, logger: logger.With().Str("component", "sorter").Logger()}, nil
}

// Sort files every archive. Per-archive failures are recorded in the summary;
// only cancellation returns an error.
func (s *Sorter) Sort(ctx context.Context, archives []string) (*Summary, error) {
	results := make([]Result, len(archives))

	p := pool.New().WithMaxGoroutines(s.opts.Workers).WithContext(ctx)
	for i, path := range archives {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.SortOne(ctx, path)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := &Summary{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSorted:
			sum.Sorted++
		case OutcomeDuplicate:
			sum.Duplicates++
		case OutcomeNoMRN:
			sum.NoMRN++
		default:
			sum.Failed++
		}
	}
	return sum, nil
}

// SortOne runs the MRN scan on path and copies it into place
func (s *Sorter) SortOne(ctx context.Context, path string) Result {
	res := Result{Archive: path}
	logger := s.logger.With().Str("archive", path).Logger()

	if err := common.NewValidationUtils().ValidateInputFile(path); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		logger.Error().Err(err).Msg("invalid archive path")
		return res
	}

	sc, err := scan.Open(path, s.opts.Scan, logger)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		logger.Error().Err(err).Msg("cannot open archive")
		return res
	}
	mrns, err := sc.MRNs(ctx)
	sc.Close()
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	if len(mrns) == 0 {
		res.Outcome = OutcomeNoMRN
		logger.Warn().Msg("no patient id found, archive left in place")
		return res
	}

	sort.Strings(mrns)
	res.MRN = mrns[0]
	if len(mrns) > 1 {
		res.Others = mrns[1:]
		logger.Warn().Str("mrn", res.MRN).Strs("others", res.Others).Msg("multiple patient ids in archive")
	}

	dir := filepath.Join(s.opts.OutDir, Sanitize(res.MRN))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Outcome, res.Err = OutcomeFailed, common.WrapError(err, "create patient directory %s", dir)
		return res
	}

	if s.opts.Dedupe {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, err := findDuplicate(path, dir); err != nil {
			logger.Warn().Err(err).Msg("dedupe check failed, copying anyway")
		} else if existing != "" {
			res.Outcome, res.Dest = OutcomeDuplicate, existing
			logger.Info().Str("dest", existing).Msg("identical archive already filed")
			return res
		}
	}

	dest, err := copyUnique(path, filepath.Join(dir, filepath.Base(path)))
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		logger.Error().Err(err).Msg("copy failed")
		return res
	}
	res.Outcome, res.Dest = OutcomeSorted, dest
	logger.Info().Str("mrn", res.MRN).Str("dest", dest).Msg("archive sorted")
	return res
}

// Sanitize makes an identifier safe as a single path component
func Sanitize(id string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>| `, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(id))

	if out == "" || out == "." || out == ".." {
		return "_"
	}
	return out
}

// candidateName returns path with counter appended before the extension,
// e.g. study.zip -> study_2.zip. Counter 0 is path itself.
func candidateName(path string, counter int) string {
	if counter == 0 {
		return path
	}
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
}

// copyUnique copies src to dst or the first free suffixed name. The
// destination is created exclusively so a concurrent writer never clobbers it.
func copyUnique(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	for counter := 0; counter <= maxSuffix+1; counter++ {
		name := candidateName(dst, counter)
		if counter > maxSuffix {
			name = candidateName(dst, int(time.Now().UnixNano()))
		}

		out, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create destination: %w", err)
		}

		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(name)
			return "", fmt.Errorf("copy to %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			os.Remove(name)
			return "", fmt.Errorf("close %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free name for %s", dst)
}

// findDuplicate returns a file in dir with the same content as src, or ""
func findDuplicate(src, dir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var want []byte
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() != info.Size() {
			continue
		}
		if want == nil {
			if want, err = hashFile(src); err != nil {
				return "", err
			}
		}
		candidate := filepath.Join(dir, e.Name())
		got, err := hashFile(candidate)
		if err != nil {
			continue
		}
		if bytes.Equal(want, got) {
			return candidate, nil
		}
	}
	return "", nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
