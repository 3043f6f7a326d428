package core

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// FindPeakConfig holds the thresholds FindPeak is configured with.
type FindPeakConfig struct {
	MinHeight     float64
	MinProminence float64
	MinDistance   int
}

// DefaultFindPeakConfig matches the original implementation's defaults.
func DefaultFindPeakConfig() FindPeakConfig {
	return FindPeakConfig{MinHeight: 0.5, MinProminence: 0.3, MinDistance: 10}
}

// ProcessPeakConfig holds the fitting parameters ProcessPeak is
// configured with.
type ProcessPeakConfig struct {
	ParabolaRange            int
	GaussianRangeMultiplier  float64
}

// DefaultProcessPeakConfig matches the original implementation's defaults.
func DefaultProcessPeakConfig() ProcessPeakConfig {
	return ProcessPeakConfig{ParabolaRange: 5, GaussianRangeMultiplier: 3.0}
}

// RunConfig mirrors RuntimeConfig (§6) plus the ambient-stack additions
// from §3: checkpoints, expected sample count, insertion policy choice,
// stage configs, and the addresses/topics for the optional components
// L-Q sit around the Runtime.
type RunConfig struct {
	RuntimeConfig

	Checkpoints     []uint32
	ExpectedCount   int
	InsertionPolicy string
	PolicyArg       int

	FindPeak    FindPeakConfig
	ProcessPeak ProcessPeakConfig

	LogLevel     string
	MetricsAddr  string
	LiveAddr     string
	KafkaBrokers []string
	KafkaTopic   string
	DatasetPath  string
}

// DefaultRunConfig returns a RunConfig with worker auto-detect and every
// other field at its documented default.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		InsertionPolicy: "always",
		FindPeak:        DefaultFindPeakConfig(),
		ProcessPeak:     DefaultProcessPeakConfig(),
		LogLevel:        "info",
		KafkaTopic:      "saxs-results",
	}
}

// NewFlagSet builds the CLI flag set the way the teacher builds its own
// global flag set: sorted-off, interspersed args allowed.
func NewFlagSet(progname string) *pflag.FlagSet {
	f := pflag.NewFlagSet(progname, pflag.ContinueOnError)
	f.SortFlags = false

	f.Int("workers", 0, "worker count for the async driver (0 = auto-detect to NumCPU)")
	f.Uint("max-stages", 0, "optional stage-depth value recorded in RuntimeConfig; informational, no cap is enforced (0 = unset)")
	f.UintSlice("checkpoint", nil, "regroup-pool checkpoint stage(s)")
	f.Int("expected-count", 0, "expected sample count for checkpoint readiness (recorded in RunConfig only; each run sets readiness from the number of seeded samples)")
	f.String("policy", "always", "insertion policy: always, never, saturation, per-sample-limit")
	f.Int("policy-arg", 0, "numeric argument for saturation/per-sample-limit policies")

	f.Float64("min-height", 0.5, "FindPeak: minimum peak height")
	f.Float64("min-prominence", 0.3, "FindPeak: minimum peak prominence")
	f.Int("min-distance", 10, "FindPeak: minimum index distance between kept peaks")

	f.Int("parabola-range", 5, "ProcessPeak: half-width of the parabola fit window")
	f.Float64("gaussian-range-multiplier", 3.0, "ProcessPeak: sigma multiplier for the refinement window")

	f.String("log", "info", "log level (debug/info/warn/error/disabled)")
	f.String("metrics-addr", "", "address to serve /healthz, /metrics, /status, /regroup on (empty disables)")
	f.String("live-addr", "", "address to serve the /live websocket feed on (empty disables)")
	f.StringSlice("kafka-brokers", nil, "Kafka seed brokers for the result sink (empty disables)")
	f.String("kafka-topic", "saxs-results", "Kafka topic terminal samples are published to")
	f.String("dataset", "", "path to a dataset file or directory to load at startup")

	return f
}

// ParseRunConfig parses args with f and loads the result into a
// RunConfig via koanf, the same flag-to-koanf pipeline the teacher uses.
// Parse errors are reported as a one-line error plus f.Usage() on stderr.
func ParseRunConfig(f *pflag.FlagSet, args []string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	if err := f.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		f.Usage()
		return cfg, err
	}

	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return cfg, fmt.Errorf("loading flags into config: %w", err)
	}

	cfg.WorkerCount = k.Int("workers")
	if v := k.Int("max-stages"); v > 0 {
		u := uint32(v)
		cfg.MaxStages = &u
	}

	for _, v := range k.Ints("checkpoint") {
		cfg.Checkpoints = append(cfg.Checkpoints, uint32(v))
	}
	cfg.ExpectedCount = k.Int("expected-count")
	cfg.InsertionPolicy = k.String("policy")
	cfg.PolicyArg = k.Int("policy-arg")

	cfg.FindPeak.MinHeight = k.Float64("min-height")
	cfg.FindPeak.MinProminence = k.Float64("min-prominence")
	cfg.FindPeak.MinDistance = k.Int("min-distance")

	cfg.ProcessPeak.ParabolaRange = k.Int("parabola-range")
	cfg.ProcessPeak.GaussianRangeMultiplier = k.Float64("gaussian-range-multiplier")

	cfg.LogLevel = k.String("log")
	cfg.MetricsAddr = k.String("metrics-addr")
	cfg.LiveAddr = k.String("live-addr")
	cfg.KafkaBrokers = k.Strings("kafka-brokers")
	cfg.KafkaTopic = k.String("kafka-topic")
	cfg.DatasetPath = k.String("dataset")

	return cfg, nil
}

// BuildInsertionPolicy turns a RunConfig's policy selection into a live
// InsertionPolicy instance.
func BuildInsertionPolicy(cfg RunConfig) (InsertionPolicy, error) {
	switch cfg.InsertionPolicy {
	case "", "always":
		return AlwaysInsert{}, nil
	case "never":
		return NeverInsert{}, nil
	case "saturation":
		return NewSaturation(cfg.PolicyArg), nil
	case "per-sample-limit":
		return NewPerSampleLimit(cfg.PolicyArg), nil
	default:
		return nil, fmt.Errorf("unknown insertion policy %q", cfg.InsertionPolicy)
	}
}

// ParseLogLevel parses level and calls zerolog.SetGlobalLevel, matching
// the teacher's --log handling.
func ParseLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
