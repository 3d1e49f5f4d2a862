package models

import "time"

// MetricType is the canonical type of a converted health sample,
// independent of the originating device API.
type MetricType string

const (
	MetricSteps           MetricType = "steps"
	MetricHeartRate       MetricType = "heart_rate"
	MetricSleepDuration   MetricType = "sleep_duration"
	MetricSleepCore       MetricType = "sleep_core"
	MetricSleepREM        MetricType = "sleep_rem"
	MetricSleepDeep       MetricType = "sleep_deep"
	MetricSleepLight      MetricType = "sleep_light"
	MetricActiveEnergy    MetricType = "active_energy"
	MetricExerciseMinutes MetricType = "exercise_minutes"
)

// MetricUnits maps metric types to their canonical units.
var MetricUnits = map[MetricType]string{
	MetricSteps:           "count",
	MetricHeartRate:       "count/min",
	MetricSleepDuration:   "min",
	MetricSleepCore:       "min",
	MetricSleepREM:        "min",
	MetricSleepDeep:       "min",
	MetricSleepLight:      "min",
	MetricActiveEnergy:    "kcal",
	MetricExerciseMinutes: "min",
}

// MetricRecord is the uniform representation of one health sample
// after conversion. Records are transient: produced per sync cycle,
// consumed by the uploader, discarded after acknowledgment.
type MetricRecord struct {
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source,omitempty"`
}

// SampleCategory groups raw samples on the device side.
type SampleCategory string

const (
	CategorySteps     SampleCategory = "steps"
	CategoryHeartRate SampleCategory = "heart_rate"
	CategorySleep     SampleCategory = "sleep"
	CategoryWorkouts  SampleCategory = "workouts"
)

// AllCategories lists categories in default sync order.
var AllCategories = []SampleCategory{
	CategorySteps,
	CategoryHeartRate,
	CategorySleep,
	CategoryWorkouts,
}

// SleepStage tags a raw sleep interval.
type SleepStage string

const (
	StageCore  SleepStage = "core"
	StageREM   SleepStage = "rem"
	StageDeep  SleepStage = "deep"
	StageLight SleepStage = "light"
	StageAwake SleepStage = "awake"
)

// RawSample is one sample as delivered by the device health store.
// Quantity samples carry Value; sleep intervals carry Stage and an
// End later than Start.
type RawSample struct {
	Category SampleCategory
	Value    float64
	Start    time.Time
	End      time.Time
	Stage    SleepStage
	Metadata map[string]string
}

// RawWorkout is one workout session from the device health store.
type RawWorkout struct {
	Type         string
	Start        time.Time
	End          time.Time
	ActiveEnergy float64 // kcal
}

// Duration returns the workout length.
func (w RawWorkout) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// DateRange bounds a sample query, inclusive of From, exclusive of To.
type DateRange struct {
	From time.Time
	To   time.Time
}
