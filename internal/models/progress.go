package models

import "time"

// SyncProgress reports completion of the current sync cycle.
type SyncProgress struct {
	TotalOperations     int `json:"total_operations"`
	CompletedOperations int `json:"completed_operations"`
}

// Fraction returns completed/total clamped to [0,1].
func (p SyncProgress) Fraction() float64 {
	if p.TotalOperations <= 0 {
		return 0
	}
	f := float64(p.CompletedOperations) / float64(p.TotalOperations)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// SyncError records one category/batch failure inside a sync cycle.
// Errors are accumulated, never thrown as a hard failure for the
// whole cycle unless no categories succeed.
type SyncError struct {
	DataType  string    `json:"data_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
