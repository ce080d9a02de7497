package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand" //nolint:gosec // reproducible access patterns
	"net/http"
	_ "net/http/pprof" //nolint:gosec // opt-in profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
	"github.com/syedhassaanahmed/log-storage-service/internal/config"
	"github.com/syedhassaanahmed/log-storage-service/internal/logging"
	"github.com/syedhassaanahmed/log-storage-service/store"
)

const (
	benchUpload  = "upload"
	benchResolve = "resolve"
	benchRead    = "read"
)

type benchConfig struct {
	configPath  string
	mode        string
	files       int
	fileSize    int
	compression string
	iterations  int
	duration    time.Duration
	readRandom  bool
	seed        int64
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	fgProfile   string
}

type benchStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

func (s benchStats) throughput() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.bytes) / (1024 * 1024) / s.elapsed.Seconds()
}

func newBenchCmd() *cobra.Command {
	var bc benchConfig
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Profile upload, resolve and read against a configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), bc)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&bc.configPath, "config", "c", "", "path to a YAML config file (memory backend when empty)")
	f.StringVar(&bc.mode, "mode", benchRead, "upload, resolve or read")
	f.IntVar(&bc.files, "files", 200, "number of files in the generated archive")
	f.IntVar(&bc.fileSize, "file-size", 64<<10, "size of each generated file in bytes")
	f.StringVar(&bc.compression, "compression", "deflate", "entry compression: store, deflate or zstd")
	f.IntVar(&bc.iterations, "iterations", 0, "number of operations (overrides --duration)")
	f.DurationVar(&bc.duration, "duration", 10*time.Second, "how long to run")
	f.BoolVar(&bc.readRandom, "random", false, "pick files at random instead of round robin")
	f.Int64Var(&bc.seed, "seed", 1, "random seed")
	f.StringVar(&bc.pprofAddr, "pprof-addr", "", "serve net/http/pprof on this address")
	f.StringVar(&bc.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	f.StringVar(&bc.memProfile, "memprofile", "", "write a heap profile to this file")
	f.StringVar(&bc.traceFile, "trace", "", "write an execution trace to this file")
	f.StringVar(&bc.fgProfile, "fgprof", "", "write a wall-clock fgprof profile to this file")
	return cmd
}

//nolint:gocognit,gocyclo // profiler setup is a flat list of opt-in steps
func runBench(ctx context.Context, out io.Writer, bc benchConfig) error {
	switch bc.mode {
	case benchUpload, benchResolve, benchRead:
	default:
		return fmt.Errorf("unknown mode %q", bc.mode)
	}
	if bc.files <= 0 {
		return errors.New("--files must be positive")
	}

	cfg, err := config.Load(bc.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, closeLog, err := logging.New(logging.Config{Level: "warn", Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck // stderr close is a no-op

	st, closeStore, err := cfg.OpenStore(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck // best effort on exit

	svc := logstorage.New(st, logstorage.WithMaxUploadSize(cfg.Server.MaxUploadSize), logstorage.WithLogger(logger))

	data, names, err := buildBenchArchive(bc)
	if err != nil {
		return err
	}

	if bc.pprofAddr != "" {
		go func() {
			logger.Warn("pprof listening", "addr", bc.pprofAddr)
			//nolint:gosec // profiling endpoint without timeouts
			if err := http.ListenAndServe(bc.pprofAddr, nil); err != nil {
				logger.Warn("pprof server", "error", err)
			}
		}()
	}

	if bc.fgProfile != "" {
		fgFile, err := os.Create(bc.fgProfile)
		if err != nil {
			return err
		}
		stopFG := fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				logger.Warn("fgprof stop", "error", err)
			}
			_ = fgFile.Close()
		}()
	}
	if bc.cpuProfile != "" {
		cpuFile, err := os.Create(bc.cpuProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			_ = cpuFile.Close()
			return err
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}
	if bc.traceFile != "" {
		traceFile, err := os.Create(bc.traceFile)
		if err != nil {
			return err
		}
		if err := trace.Start(traceFile); err != nil {
			_ = traceFile.Close()
			return err
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runBenchLoop(ctx, svc, bc, data, names)
	if err != nil {
		return err
	}

	if bc.memProfile != "" {
		runtime.GC()
		f, err := os.Create(bc.memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "mode=%s backend=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		bc.mode, cfg.Storage.Backend, stats.ops, stats.bytes, stats.elapsed, stats.throughput())
	return nil
}

//nolint:gocognit // one loop per mode
func runBenchLoop(ctx context.Context, svc *logstorage.Service, bc benchConfig, data []byte, names []string) (benchStats, error) {
	const archiveName = "bench.zip"

	// Every mode but upload reads a single stored archive.
	var archiveID string
	if bc.mode != benchUpload {
		res, err := svc.Upload(ctx, archiveName, bytes.NewReader(data))
		if err != nil {
			return benchStats{}, fmt.Errorf("seed archive: %w", err)
		}
		archiveID = res.ArchiveID
	}

	start := time.Now()
	var stats benchStats
	shouldContinue := func() bool {
		if ctx.Err() != nil {
			return false
		}
		if bc.iterations > 0 {
			return stats.ops < bc.iterations
		}
		return time.Since(start) < bc.duration
	}
	rng := rand.New(rand.NewSource(bc.seed)) //nolint:gosec // reproducible access patterns

	for shouldContinue() {
		switch bc.mode {
		case benchUpload:
			name := fmt.Sprintf("bench-%d.zip", stats.ops)
			if _, err := svc.Upload(ctx, name, bytes.NewReader(data)); err != nil {
				return benchStats{}, err
			}
			stats.bytes += int64(len(data))

		case benchResolve:
			f, ok, err := svc.Resolve(ctx, archiveID+"/"+pickName(names, stats.ops, rng, bc.readRandom))
			if err != nil {
				return benchStats{}, err
			}
			if !ok {
				return benchStats{}, errors.New("generated file not found")
			}
			stats.bytes += f.Size()

		case benchRead:
			f, ok, err := svc.Resolve(ctx, archiveID+"/"+pickName(names, stats.ops, rng, bc.readRandom))
			if err != nil {
				return benchStats{}, err
			}
			if !ok {
				return benchStats{}, errors.New("generated file not found")
			}
			rc, err := f.Open(ctx)
			if err != nil {
				return benchStats{}, err
			}
			n, err := io.Copy(io.Discard, rc)
			_ = rc.Close()
			if err != nil {
				return benchStats{}, err
			}
			stats.bytes += n
		}
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}

// buildBenchArchive generates a ZIP of bc.files compressible log files and
// returns it with the index keys of its entries.
func buildBenchArchive(bc benchConfig) ([]byte, []string, error) {
	var method uint16
	switch bc.compression {
	case "store":
		method = zip.Store
	case "deflate":
		method = zip.Deflate
	case "zstd":
		method = zstd.ZipMethodWinZip
	default:
		return nil, nil, fmt.Errorf("unknown compression %q", bc.compression)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	line := []byte("2024-01-01T00:00:00Z INFO request served status=200 path=/api/items\n")
	content := bytes.Repeat(line, bc.fileSize/len(line)+1)[:bc.fileSize]

	names := make([]string, 0, bc.files)
	for i := range bc.files {
		name := fmt.Sprintf("logs/node-%03d/app-%05d.log", i%16, i)
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: time.Now()})
		if err != nil {
			return nil, nil, err
		}
		if _, err := fw.Write(content); err != nil {
			return nil, nil, err
		}
		names = append(names, store.EncodeKey(name))
	}
	if err := w.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), names, nil
}

func pickName(names []string, i int, rng *rand.Rand, random bool) string {
	if random {
		return names[rng.Intn(len(names))]
	}
	return names[i%len(names)]
}
