// Package main implements the CLI driver for the reflectscan analyzer.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"runtime/pprof"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/715d/reflectscan/internal/irload"
	"github.com/715d/reflectscan/pkg/ir"
	"github.com/715d/reflectscan/pkg/reflection"
	"github.com/715d/reflectscan/pkg/symbols"
)

// Config holds all command-line configuration options for the reflectscan
// analyzer.
type Config struct {
	Fixtures []string // the method fixture files to analyze
	Verbose  bool     // enables detailed output and statistics
	JSON     bool     // enables JSON output format
	Profile  bool     // enables CPU and memory profiling
}

const (
	exitReflectionFound = 1
	exitError           = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "reflectscan [fixtures...]",
		Short: "Find reflective API usage in bytecode methods",
		Long: `reflectscan runs an intraprocedural reflection analysis over method
bodies described in YAML fixtures.

For each method it reports the instructions recognized as reflective calls
(Class.forName, Class.getField, Object.getClass, ...) together with the
class, field, and method handles the analysis could track to them.`,
		Example: `  reflectscan methods.yaml            # Analyze one fixture
  reflectscan a.yaml b.yaml          # Analyze several fixtures
  reflectscan -v methods.yaml        # Verbose output
  reflectscan --json methods.yaml    # JSON output`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("reflectscan version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Fixtures = args

	slog.Info("starting reflection analysis", "fixtures", cfg.Fixtures)

	result, err := runAnalysis(&cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if result.Stats.ReflectiveMethods > 0 {
		return errWithCode(nil, exitReflectionFound)
	}
	return nil
}

// MethodReport summarizes the reflection sites of one method.
type MethodReport struct {
	Method string       `json:"method"`
	Sites  []SiteReport `json:"sites"`
}

// SiteReport is one recognized reflective call.
type SiteReport struct {
	Block    string            `json:"block"`
	Call     string            `json:"call"`
	Bindings map[string]string `json:"bindings"`
}

// Result represents the analysis output for all fixtures, including
// execution statistics.
type Result struct {
	Methods []MethodReport `json:"methods"`
	Stats   struct {
		TotalMethods      int           `json:"total_methods"`
		ReflectiveMethods int           `json:"reflective_methods"`
		ReflectionSites   int           `json:"reflection_sites"`
		AnalysisDuration  time.Duration `json:"analysis_duration"`
	} `json:"stats"`
}

func runAnalysis(cfg *Config) (*Result, error) {
	start := time.Now()

	table := symbols.NewTable()

	var methods []*ir.Method
	for _, path := range cfg.Fixtures {
		slog.Info("loading fixture", "path", path)
		loaded, err := irload.LoadFile(path, table)
		if err != nil {
			return nil, fmt.Errorf("loading fixture: %w", err)
		}
		methods = append(methods, loaded...)
	}
	slog.Info("loaded methods", "num", len(methods))

	// Each method is analyzed independently; the only shared state is the
	// interning table, which supports concurrent reads.
	reports := make([]MethodReport, len(methods))

	var wg errgroup.Group
	wg.SetLimit(runtime.NumCPU())
	for idx, m := range methods {
		wg.Go(func() error {
			analysis := reflection.Analyze(m, table)
			reports[idx] = reportFor(m, analysis)
			return nil
		})
	}
	_ = wg.Wait()

	duration := time.Since(start)
	slog.Info("analysis completed", "dur", duration)

	return convertToResult(reports, duration), nil
}

func reportFor(m *ir.Method, analysis *reflection.Analysis) MethodReport {
	report := MethodReport{Method: m.Name}
	for _, site := range analysis.ReflectionSites() {
		sr := SiteReport{
			Block:    site.Insn.Block().Label,
			Call:     formatCall(site.Insn),
			Bindings: make(map[string]string, len(site.Bindings)),
		}
		for reg, b := range site.Bindings {
			key := fmt.Sprintf("v%d", reg)
			if reg == reflection.ResultReg {
				key = "result"
			}
			val := b.Obj.String()
			if b.HasSource {
				val += " [" + b.Source.String() + "]"
			}
			sr.Bindings[key] = val
		}
		report.Sites = append(report.Sites, sr)
	}
	return report
}

func formatCall(in *ir.Instruction) string {
	if in.Callee == nil {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %s.%s", in.Op, in.Callee.Class.ClassName(), in.Callee.Name)
}

func convertToResult(reports []MethodReport, dur time.Duration) *Result {
	var r Result
	r.Stats.AnalysisDuration = dur

	slices.SortFunc(reports, func(a, b MethodReport) int {
		return strings.Compare(a.Method, b.Method)
	})

	for _, report := range reports {
		r.Stats.TotalMethods++
		if len(report.Sites) == 0 {
			continue
		}
		r.Stats.ReflectiveMethods++
		r.Stats.ReflectionSites += len(report.Sites)
		r.Methods = append(r.Methods, report)
	}
	return &r
}

func writeResults(result *Result, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(result)
	} else {
		output = formatTextOutput(result, cfg)
	}

	if err != nil {
		return err
	}

	fmt.Print(output)
	return nil
}

func formatJSONOutput(result *Result) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Methods:   result.Methods,
		Stats:     result.Stats,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data), nil
}

func formatTextOutput(result *Result, cfg *Config) string {
	var output strings.Builder

	if cfg.Verbose {
		slog.Info("",
			"total_methods", result.Stats.TotalMethods,
			"reflective_methods", result.Stats.ReflectiveMethods,
			"reflection_sites", result.Stats.ReflectionSites,
			"analysis_duration", result.Stats.AnalysisDuration.String())
	}

	if len(result.Methods) == 0 {
		slog.Info("no reflection found")
		return output.String()
	}

	for _, m := range result.Methods {
		output.WriteString(fmt.Sprintf("%s:\n", m.Method))
		for _, s := range m.Sites {
			output.WriteString(fmt.Sprintf("  [%s] %s\n", s.Block, s.Call))
			keys := slices.Sorted(maps.Keys(s.Bindings))
			for _, k := range keys {
				output.WriteString(fmt.Sprintf("    %s = %s\n", k, s.Bindings[k]))
			}
		}
	}

	return output.String()
}

type jOutput struct {
	Methods   []MethodReport `json:"methods"`
	Stats     any            `json:"stats"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}
