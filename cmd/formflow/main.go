package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	fflog "github.com/formflow-labs/formflow/pkg/formflow/v1/log"

	"github.com/formflow-labs/formflow/internal/config"
	"github.com/formflow-labs/formflow/internal/engine"
	intEvents "github.com/formflow-labs/formflow/internal/events"
	"github.com/formflow-labs/formflow/internal/logger"
	"github.com/formflow-labs/formflow/internal/persist"
	"github.com/formflow-labs/formflow/internal/redact"
	"github.com/formflow-labs/formflow/internal/rule"
	"github.com/formflow-labs/formflow/internal/tracing"

	_ "github.com/formflow-labs/formflow/rules/jsonschema"
	_ "github.com/formflow-labs/formflow/rules/length"
	_ "github.com/formflow-labs/formflow/rules/numrange"
	_ "github.com/formflow-labs/formflow/rules/oneof"
	_ "github.com/formflow-labs/formflow/rules/pattern"
	_ "github.com/formflow-labs/formflow/rules/required"
)

const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsageError  = 2
	ExitInvalidForm = 3
	DefaultLogLevel = "info"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "validate":
			runValidateCommand(os.Args[2:])
			return
		case "check":
			os.Exit(runCheckCommand(os.Args[2:]))
		case "--version", "-version":
			printVersion()
			os.Exit(ExitSuccess)
		}
	}
	printUsage()
	os.Exit(ExitUsageError)
}

func printVersion() {
	fmt.Printf("formflow version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags...]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  validate   Validate the structure of a form config YAML")
	fmt.Fprintln(os.Stderr, "  check      Validate a values YAML against a form config")
	fmt.Fprintln(os.Stderr, "  --version  Print version information")
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	formPath := validateFlags.String("form", "", "Path to the form config YAML file to validate (required)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -form <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates the structure and schema compatibility of a formflow form config.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}
	if *formPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -form flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating form config: %s", *formPath)

	cfg, err := config.LoadFormConfigFromFile(*formPath)
	if err != nil {
		var validationErr *ffErrors.ValidationError
		var configErr *ffErrors.ConfigError
		if errors.As(err, &validationErr) {
			log.Errorf("Form config validation failed:\n%s", validationErr.Error())
		} else if errors.As(err, &configErr) {
			log.Errorf("Form config error:\n%s", configErr.Error())
		} else {
			log.Errorf("Failed to load or validate form config: %v", err)
		}
		os.Exit(ExitFailure)
	}

	// Rule references and parameters only resolve through a build pass.
	if _, err := config.BuildDefinitions(cfg, rule.DefaultStaticRegistryGetter); err != nil {
		log.Errorf("Form config rule resolution failed:\n%s", err.Error())
		os.Exit(ExitFailure)
	}

	log.Infof("Form config '%s' is valid (%d fields).", cfg.Name, len(cfg.Fields))
	os.Exit(ExitSuccess)
}

func runCheckCommand(args []string) int {
	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
	formPath := checkFlags.String("form", "", "Path to the form config YAML file (required)")
	valuesPath := checkFlags.String("values", "", "Path to the values YAML file (required)")
	logLevel := checkFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	timeout := checkFlags.Duration("timeout", 10*time.Second, "Maximum time to wait for async validators")
	persistPath := checkFlags.String("persist", "", "Path to a SQLite database for draft persistence (optional)")

	checkFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s check -form <path> -values <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Applies a values file to a form config and prints a validation report.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		checkFlags.PrintDefaults()
	}

	if err := checkFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing check flags: %v\n", err)
		return ExitUsageError
	}
	if *formPath == "" || *valuesPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -form and -values flags are required")
		checkFlags.Usage()
		return ExitUsageError
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)

	cfg, err := config.LoadFormConfigFromFile(*formPath)
	if err != nil {
		log.Errorf("Failed to load form config: %v", err)
		return ExitFailure
	}
	defs, err := config.BuildDefinitions(cfg, rule.DefaultStaticRegistryGetter)
	if err != nil {
		log.Errorf("Failed to build field definitions: %v", err)
		return ExitFailure
	}

	values, err := loadValuesFile(*valuesPath)
	if err != nil {
		log.Errorf("Failed to load values file: %v", err)
		return ExitFailure
	}

	// Tracing is configured from the standard OTEL_* environment variables
	// and falls back to a NoOp provider when no endpoint is set.
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to configure tracing from environment: %v", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Tracer provider shutdown failed: %v", err)
		}
	}()

	bus := intEvents.NewChannelEventBus(256, log)
	defer bus.Close()

	opts := []ff.EngineOption{
		ff.WithEventBus(bus),
		ff.WithTracerProvider(tracerProvider),
	}
	if cfg.FormID != "" {
		opts = append(opts, ff.WithFormID(cfg.FormID))
	}
	if cfg.DefaultMode != "" {
		opts = append(opts, ff.WithDefaultMode(field.Mode(cfg.DefaultMode)))
	}
	if d := cfg.GetDefaultDebounce(); d > 0 {
		opts = append(opts, ff.WithDefaultDebounce(d))
	}
	if *persistPath != "" {
		adapter, err := persist.NewSQLiteAdapter(*persistPath)
		if err != nil {
			log.Errorf("Failed to open persistence database: %v", err)
			return ExitFailure
		}
		defer adapter.Close()
		opts = append(opts, ff.WithPersistAdapter(adapter))
	}

	eng, err := engine.NewEngine(log, opts...)
	if err != nil {
		log.Errorf("Failed to create engine: %v", err)
		return ExitFailure
	}
	defer eng.Dispose()

	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	go newMetricsListener(eng, bus, log).Start(listenerCtx)

	if err := eng.RegisterFields(defs...); err != nil {
		log.Errorf("Failed to register fields: %v", err)
		return ExitFailure
	}

	if *persistPath != "" {
		if err := eng.HydrateFromPersistence(context.Background()); err != nil {
			log.Warnf("Failed to hydrate persisted draft: %v", err)
		}
	}

	result, err := eng.ApplyBatch(values, nil, false)
	if err != nil {
		log.Errorf("Failed to apply values: %v", err)
		return ExitFailure
	}
	for _, key := range result.MissingFields {
		log.Warnf("Values file references undeclared field '%s'", key)
	}
	for _, mismatch := range result.TypeMismatches {
		log.Warnf("Field '%s': expected %s, got %s", mismatch.FieldKey, mismatch.Expected, mismatch.Actual)
	}

	valid := eng.Validate()
	if snap := eng.Snapshot(); snap.PendingCount() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		if err := eng.Submit(ctx, ff.SubmitOptions{WaitForPending: true}); err != nil {
			log.Warnf("Timed out waiting for async validators: %v", err)
		}
		cancel()
		valid = eng.Snapshot().ErrorCount() == 0
	}

	printReport(eng, cfg)

	if !valid || len(result.TypeMismatches) > 0 {
		return ExitInvalidForm
	}
	return ExitSuccess
}

func printReport(eng *engine.Engine, cfg *config.FormConfig) {
	snap := eng.Snapshot()
	tracker := redact.NewTracker()
	for i := range cfg.Fields {
		if cfg.Fields[i].Sensitive {
			tracker.Add(cfg.Fields[i].Key)
		}
	}
	values := tracker.RedactValues(snap.Values())

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Printf("Form: %s\n", cfg.Name)
	fmt.Printf("Fields: %d  Errors: %d  Dirty: %d  Pending: %d\n",
		len(cfg.Fields), snap.ErrorCount(), snap.DirtyCount(), snap.PendingCount())
	for _, key := range keys {
		result := snap.Validation(key)
		status := "ok"
		if result.IsInvalid() {
			status = "INVALID: " + result.Message()
		} else if result.IsValidating() {
			status = "pending"
		}
		fmt.Printf("  %-30s %-20v %s\n", key, values[key], status)
	}
}

// newMetricsListener builds the event-driven metrics listener covering the
// event classes outside the engine's instrumented hot paths, registering its
// collectors with the engine's metrics registry.
func newMetricsListener(eng *engine.Engine, bus *intEvents.ChannelEventBus, log fflog.Logger) *intEvents.MetricsEventListener {
	asyncSettled := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "formflow_async_validations_total", Help: "Total number of settled async validations by outcome."},
		[]string{"outcome"},
	)
	historyRestores := prometheus.NewCounter(
		prometheus.CounterOpts{Name: "formflow_history_restores_total", Help: "Total number of undo/redo restores."},
	)
	bindingWrites := prometheus.NewCounter(
		prometheus.CounterOpts{Name: "formflow_binding_writes_total", Help: "Total number of values mirrored through field bindings."},
	)
	persistFailures := prometheus.NewCounter(
		prometheus.CounterOpts{Name: "formflow_persist_failures_total", Help: "Total number of failed persistence saves."},
	)
	if reg := eng.MetricsRegistryProvider().Registry(); reg != nil {
		for _, collector := range []prometheus.Collector{asyncSettled, historyRestores, bindingWrites, persistFailures} {
			if err := reg.Register(collector); err != nil {
				log.Warnf("Failed to register metrics collector: %v", err)
			}
		}
	}
	return intEvents.NewMetricsEventListener(bus, asyncSettled, historyRestores, bindingWrites, persistFailures, log)
}

// loadValuesFile reads a YAML document of values, flattening nested maps
// into the engine's dotted field keys.
func loadValuesFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("YAML parsing error: %w", err)
	}
	flat := make(map[string]interface{})
	flattenInto(flat, "", doc)
	return flat, nil
}

func flattenInto(out map[string]interface{}, prefix string, value map[string]interface{}) {
	for key, v := range value {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(out, full, nested)
			continue
		}
		out[full] = v
	}
}
