package scan

import (
	"runtime"

	internal "github.com/ZanzyTHEbar/dicomzip/dzip"
	"github.com/ZanzyTHEbar/dicomzip/dzip/dicom"
)

// Options configures one scan
type Options struct {
	Workers        int           // bound for both phases; <= 0 picks from CPU count
	PreserveOrder  bool          // records follow member order instead of completion order
	InMemory       bool          // read the whole container into memory before scanning
	IgnorePatterns []string      // gitignore style member patterns never read
	VendorCatalogs []string      // extra private tag catalogs merged over the builtin ones
	Parse          dicom.Options // per-stream limits
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		Workers:        defaultWorkers(),
		PreserveOrder:  true,
		IgnorePatterns: append([]string(nil), internal.DefaultIgnorePatterns...),
		Parse: dicom.Options{
			MaxValueLength:   uint32(internal.DefaultMaxValueLength),
			MaxSequenceDepth: internal.DefaultMaxSequenceDepth,
		},
	}
}

// CPU cores * 2 for I/O bound inflate work, at least 4, capped
func defaultWorkers() int {
	return min(max(runtime.NumCPU()*2, 4), internal.DefaultMaxWorkers)
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return defaultWorkers()
	}
	return o.Workers
}
