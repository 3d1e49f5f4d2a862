package healthsync

import (
	"fmt"
	"sort"
	"time"

	"vitalsync/internal/models"
)

// Converter maps raw device samples into canonical metric records.
// Pure data transformation: no I/O, no clock.
type Converter struct {
	source string
}

func NewConverter(source string) *Converter {
	return &Converter{source: source}
}

// Convert dispatches on the sample category.
func (c *Converter) Convert(category models.SampleCategory, samples []models.RawSample, r models.DateRange) ([]models.MetricRecord, error) {
	switch category {
	case models.CategorySteps:
		return c.ConvertSteps(samples, r), nil
	case models.CategoryHeartRate:
		return c.ConvertHeartRate(samples), nil
	case models.CategorySleep:
		return c.ConvertSleep(samples), nil
	default:
		return nil, fmt.Errorf("unsupported sample category: %s", category)
	}
}

// ConvertSteps emits one record per query window with the summed
// step count.
func (c *Converter) ConvertSteps(samples []models.RawSample, r models.DateRange) []models.MetricRecord {
	if len(samples) == 0 {
		return nil
	}
	var total float64
	for _, s := range samples {
		total += s.Value
	}
	return []models.MetricRecord{{
		Type:      models.MetricSteps,
		Value:     total,
		Unit:      models.MetricUnits[models.MetricSteps],
		Timestamp: r.To,
		Source:    c.source,
	}}
}

// ConvertHeartRate emits one record per sample, carrying the motion
// context through as metadata when present.
func (c *Converter) ConvertHeartRate(samples []models.RawSample) []models.MetricRecord {
	records := make([]models.MetricRecord, 0, len(samples))
	for _, s := range samples {
		var metadata map[string]string
		if len(s.Metadata) > 0 {
			metadata = make(map[string]string, len(s.Metadata))
			for k, v := range s.Metadata {
				metadata[k] = v
			}
		}
		records = append(records, models.MetricRecord{
			Type:      models.MetricHeartRate,
			Value:     s.Value,
			Unit:      models.MetricUnits[models.MetricHeartRate],
			Timestamp: s.Start,
			Metadata:  metadata,
			Source:    c.source,
		})
	}
	return records
}

var stageMetric = map[models.SleepStage]models.MetricType{
	models.StageCore:  models.MetricSleepCore,
	models.StageREM:   models.MetricSleepREM,
	models.StageDeep:  models.MetricSleepDeep,
	models.StageLight: models.MetricSleepLight,
}

type sleepNight struct {
	firstStart time.Time
	lastEnd    time.Time
	stages     map[models.SleepStage]time.Duration
}

// ConvertSleep groups interval samples by calendar night (noon to
// noon), sums duration per stage excluding awake intervals from
// asleep totals, and emits per-stage records plus one aggregate
// sleep-duration record per night.
func (c *Converter) ConvertSleep(samples []models.RawSample) []models.MetricRecord {
	nights := make(map[time.Time]*sleepNight)
	for _, s := range samples {
		if !s.End.After(s.Start) {
			continue
		}
		key := nightOf(s.Start)
		night, ok := nights[key]
		if !ok {
			night = &sleepNight{
				firstStart: s.Start,
				lastEnd:    s.End,
				stages:     make(map[models.SleepStage]time.Duration),
			}
			nights[key] = night
		}
		if s.Start.Before(night.firstStart) {
			night.firstStart = s.Start
		}
		if s.End.After(night.lastEnd) {
			night.lastEnd = s.End
		}
		night.stages[s.Stage] += s.End.Sub(s.Start)
	}

	keys := make([]time.Time, 0, len(nights))
	for key := range nights {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	var records []models.MetricRecord
	for _, key := range keys {
		night := nights[key]

		var asleep time.Duration
		for stage, d := range night.stages {
			if stage == models.StageAwake {
				continue
			}
			asleep += d
		}
		inBed := night.lastEnd.Sub(night.firstStart)
		efficiency := 0.0
		if inBed > 0 {
			efficiency = float64(asleep) / float64(inBed)
		}
		if efficiency < 0 {
			efficiency = 0
		}
		if efficiency > 1 {
			efficiency = 1
		}

		for _, stage := range []models.SleepStage{
			models.StageCore, models.StageREM, models.StageDeep, models.StageLight,
		} {
			d, ok := night.stages[stage]
			if !ok {
				continue
			}
			metric := stageMetric[stage]
			records = append(records, models.MetricRecord{
				Type:      metric,
				Value:     d.Minutes(),
				Unit:      models.MetricUnits[metric],
				Timestamp: night.firstStart,
				Source:    c.source,
			})
		}

		records = append(records, models.MetricRecord{
			Type:      models.MetricSleepDuration,
			Value:     asleep.Minutes(),
			Unit:      models.MetricUnits[models.MetricSleepDuration],
			Timestamp: night.firstStart,
			Metadata: map[string]string{
				"time_in_bed_min":  fmt.Sprintf("%.0f", inBed.Minutes()),
				"sleep_efficiency": fmt.Sprintf("%.4f", efficiency),
			},
			Source: c.source,
		})
	}
	return records
}

// nightOf anchors an interval to its night: everything from noon to
// next-day noon belongs to the same night.
func nightOf(t time.Time) time.Time {
	shifted := t.Add(-12 * time.Hour)
	year, month, day := shifted.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, shifted.Location())
}

// ConvertWorkouts derives active-energy and exercise-minutes records
// from each workout, attaching the workout type as metadata.
func (c *Converter) ConvertWorkouts(workouts []models.RawWorkout) []models.MetricRecord {
	var records []models.MetricRecord
	for _, w := range workouts {
		metadata := map[string]string{"workout_type": w.Type}
		if w.ActiveEnergy > 0 {
			records = append(records, models.MetricRecord{
				Type:      models.MetricActiveEnergy,
				Value:     w.ActiveEnergy,
				Unit:      models.MetricUnits[models.MetricActiveEnergy],
				Timestamp: w.Start,
				Metadata:  metadata,
				Source:    c.source,
			})
		}
		records = append(records, models.MetricRecord{
			Type:      models.MetricExerciseMinutes,
			Value:     w.Duration().Minutes(),
			Unit:      models.MetricUnits[models.MetricExerciseMinutes],
			Timestamp: w.Start,
			Metadata:  metadata,
			Source:    c.source,
		})
	}
	return records
}
