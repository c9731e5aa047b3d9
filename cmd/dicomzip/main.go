package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/dicomzip/dzip"
	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
	"github.com/ZanzyTHEbar/dicomzip/dzip/config"
	"github.com/ZanzyTHEbar/dicomzip/dzip/report"
	"github.com/ZanzyTHEbar/dicomzip/dzip/scan"
	"github.com/ZanzyTHEbar/dicomzip/dzip/sorter"
)

const (
	exitUsage   = 1
	exitArchive = 2
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			stop()
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitUsage)
	}
}

type rootFlags struct {
	file            string
	mrn             bool
	configPath      string
	workers         int
	ordered         bool
	inMemory        bool
	metricsTextfile string
	logLevel        string
	format          string
}

func newRootCommand() *cobra.Command {
	var f rootFlags

	root := &cobra.Command{
		Use:           "dicomzip -f <archive.zip>",
		Short:         "Scan DICOM files inside a ZIP archive and report their metadata",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.file == "" {
				return errors.New("an archive is required: -f <archive.zip>")
			}
			if f.format != "text" && f.format != "json" {
				return fmt.Errorf("unknown format %q: want text or json", f.format)
			}

			cfg, err := config.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			opts := applyScanFlags(cmd, cfg, f)

			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = f.logLevel
			}
			if f.mrn {
				level = zerolog.LevelErrorValue
			}
			logger := internal.GetLogger(level)

			return runScan(cmd, f, opts, logger)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "path to the ZIP archive")
	flags.BoolVar(&f.mrn, "mrn", false, "print only the distinct Patient IDs, one per line")
	flags.IntVar(&f.workers, "workers", 0, "worker goroutines per phase (default from config or CPU count)")
	flags.BoolVar(&f.ordered, "ordered", true, "emit records in archive order instead of completion order")
	flags.BoolVar(&f.inMemory, "in-memory", false, "read the whole archive into memory before scanning")
	flags.StringVar(&f.metricsTextfile, "metrics-textfile", "", "write scan metrics in Prometheus text format to this path")
	flags.StringVar(&f.format, "format", "text", "report format: text or json")
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (default searches ., .., ~/.config/dicomzip)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "log level written to stderr")

	root.AddCommand(newSortCommand(&f))
	return root
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config, f rootFlags) scan.Options {
	opts := cfg.ScanOptions()
	if cmd.Flags().Changed("workers") && f.workers > 0 {
		opts.Workers = f.workers
	}
	if cmd.Flags().Changed("ordered") {
		opts.PreserveOrder = f.ordered
	}
	if cmd.Flags().Changed("in-memory") {
		opts.InMemory = f.inMemory
	}
	return opts
}

func runScan(cmd *cobra.Command, f rootFlags, opts scan.Options, logger zerolog.Logger) error {
	s, err := scan.Open(f.file, opts, logger)
	if err != nil {
		if archive.IsArchiveError(err) {
			return cliError{code: exitArchive, err: err}
		}
		return err
	}
	defer s.Close()

	var metrics *scan.Metrics
	if f.metricsTextfile != "" {
		metrics = scan.NewMetrics()
		s.WithMetrics(metrics)
	}

	r, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(f.metricsTextfile); err != nil {
			logger.Warn().Err(err).Str("path", f.metricsTextfile).Msg("failed to write metrics textfile")
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case f.mrn:
		return report.WriteMRNs(out, r.MRNs())
	case f.format == "json":
		return report.WriteJSON(out, r)
	default:
		return report.WriteText(out, r)
	}
}

func newSortCommand(root *rootFlags) *cobra.Command {
	var (
		outDir string
		dedupe bool
	)

	cmd := &cobra.Command{
		Use:   "sort [--out DIR] archive.zip...",
		Short: "Copy archives into per-patient directories named by MRN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(root.configPath)
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") {
				level = root.logLevel
			}
			logger := internal.GetLogger(level)

			opts := sorter.Options{
				OutDir:  cfg.Sort.OutDir,
				Dedupe:  cfg.Sort.Dedupe,
				Workers: 1,
				Scan:    cfg.ScanOptions(),
			}
			if cmd.Flags().Changed("out") {
				opts.OutDir = outDir
			}
			if cmd.Flags().Changed("dedupe") {
				opts.Dedupe = dedupe
			}

			srt, err := sorter.New(opts, logger)
			if err != nil {
				return err
			}
			sum, err := srt.Sort(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range sum.Results {
				if r.Dest != "" {
					fmt.Fprintf(out, "%s\t%s\t%s\n", r.Outcome, r.Archive, r.Dest)
				} else {
					fmt.Fprintf(out, "%s\t%s\n", r.Outcome, r.Archive)
				}
			}
			logger.Info().
				Int("sorted", sum.Sorted).
				Int("duplicates", sum.Duplicates).
				Int("no_mrn", sum.NoMRN).
				Int("failed", sum.Failed).
				Msg("sort finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config: sort.outDir)")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "skip archives already filed with identical content")
	return cmd
}
