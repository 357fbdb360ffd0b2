package degradation

import (
	"context"
	"fmt"

	"github.com/HendryAvila/vibe-check/internal/analysis"
)

// Availability is the coarse health of the async analysis system.
type Availability string

const (
	FullyAvailable Availability = "fully_available"
	Degraded       Availability = "degraded"
	PartialFailure Availability = "partial_failure"
	Unavailable    Availability = "unavailable"
)

// StatusSource reports the state of the async analysis system.
type StatusSource interface {
	OverallStatus(ctx context.Context) (analysis.SystemStatus, error)
}

const highUtilization = 0.8

// Classify maps an overall status onto an availability level.
func Classify(st analysis.SystemStatus, err error) Availability {
	switch {
	case err != nil:
		return Unavailable
	case st.RunningWorkers == 0:
		return PartialFailure
	case st.Resources != nil && !st.Resources.Check.OK(),
		st.Queue.Utilization >= highUtilization:
		return Degraded
	default:
		return FullyAvailable
	}
}

// Strategy is a recommended way to analyze a PR.
type Strategy struct {
	Name         string       `json:"strategy"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
	Availability Availability `json:"system_availability"`
	SizeBucket   string       `json:"size_bucket"`
}

// Strategy names.
const (
	StrategyStandard    = "standard_analysis"
	StrategyChunked     = "chunked_analysis"
	StrategyAsync       = "async_analysis"
	StrategyFastSummary = "fast_analysis_with_summary"
	StrategyBasic       = "basic_pattern_detection"
)

// Size buckets used by the strategy table.
const (
	BucketSmall   = "small"
	BucketMedium  = "medium"
	BucketLarge   = "large"
	BucketMassive = "massive"
)

// SizeBucket buckets a PR by changed lines and files.
func SizeBucket(p analysis.PRData) string {
	lines, files := p.TotalChanges(), p.ChangedFiles
	switch {
	case lines < 500 && files < 10:
		return BucketSmall
	case lines < 2000 && files < 30:
		return BucketMedium
	case lines < 10000 && files < 100:
		return BucketLarge
	default:
		return BucketMassive
	}
}

type choice struct {
	name       string
	confidence float64
}

var strategyTable = map[Availability]map[string]choice{
	FullyAvailable: {
		BucketSmall:   {StrategyStandard, 0.95},
		BucketMedium:  {StrategyChunked, 0.90},
		BucketLarge:   {StrategyAsync, 0.90},
		BucketMassive: {StrategyAsync, 0.85},
	},
	Degraded: {
		BucketSmall:   {StrategyStandard, 0.85},
		BucketMedium:  {StrategyChunked, 0.75},
		BucketLarge:   {StrategyFastSummary, 0.65},
		BucketMassive: {StrategyFastSummary, 0.60},
	},
	PartialFailure: {
		BucketSmall:   {StrategyStandard, 0.80},
		BucketMedium:  {StrategyFastSummary, 0.70},
		BucketLarge:   {StrategyFastSummary, 0.60},
		BucketMassive: {StrategyBasic, 0.55},
	},
	Unavailable: {
		BucketSmall:   {StrategyBasic, 0.60},
		BucketMedium:  {StrategyBasic, 0.50},
		BucketLarge:   {StrategyBasic, 0.45},
		BucketMassive: {StrategyBasic, 0.40},
	},
}

// StrategyFor is the pure policy table behind RecommendedStrategy.
func StrategyFor(avail Availability, p analysis.PRData) Strategy {
	bucket := SizeBucket(p)
	row, ok := strategyTable[avail]
	if !ok {
		row = strategyTable[Unavailable]
		avail = Unavailable
	}
	c := row[bucket]
	return Strategy{
		Name:         c.name,
		Confidence:   c.confidence,
		Availability: avail,
		SizeBucket:   bucket,
		Reasoning: fmt.Sprintf("%s PR (%d lines, %d files) with system %s: %s",
			bucket, p.TotalChanges(), p.ChangedFiles, avail, c.name),
	}
}
