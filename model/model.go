package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Capability names the task family a backend belongs to.
type Capability string

const (
	CapabilityDetection   Capability = "detection"
	CapabilityReenactment Capability = "reenactment"
	CapabilityDeepfake    Capability = "deepfake"
	CapabilityLandmarks   Capability = "landmarks"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// RunRecord is the catalog entry written for every completed call.
type RunRecord struct {
	ID         string     `json:"id"`
	Capability Capability `json:"capability"`
	Backend    string     `json:"backend"`
	Source     string     `json:"source"`
	Subjects   int        `json:"subjects"`
	Label      string     `json:"label,omitempty"`
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
}

type BatchStats struct {
	Name        string  `json:"name"`
	Worker      int     `json:"worker"`
	Backend     string  `json:"backend"`
	Images      int     `json:"images"`
	Errors      int     `json:"errors"`
	Uptime      int64   `json:"uptime"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}

func RunFromDetection(r *DetectionResult) RunRecord {
	run := RunRecord{
		ID:         r.ID,
		Capability: CapabilityDetection,
		Backend:    r.Backend,
		Source:     r.Source,
		Subjects:   len(r.Faces),
		Timestamp:  r.Timestamp,
	}
	if best, ok := r.Largest(); ok {
		run.Confidence = best.Confidence
	}
	return run
}

func RunFromClassification(c *Classification) RunRecord {
	return RunRecord{
		ID:         c.ID,
		Capability: CapabilityDeepfake,
		Backend:    c.Backend,
		Source:     c.Source,
		Subjects:   len(c.Frames),
		Label:      c.Label,
		Confidence: c.Confidence,
		Timestamp:  c.Timestamp,
	}
}

func RunFromReenactment(r *Reenactment) RunRecord {
	return RunRecord{
		ID:         r.ID,
		Capability: CapabilityReenactment,
		Backend:    r.Backend,
		Source:     r.Source,
		Subjects:   r.Frames,
		Timestamp:  r.Timestamp,
	}
}

func RunFromLandmarks(r *LandmarkResult) RunRecord {
	return RunRecord{
		ID:         r.ID,
		Capability: CapabilityLandmarks,
		Backend:    r.Backend,
		Source:     r.Source,
		Subjects:   r.Faces(),
		Timestamp:  r.Timestamp,
	}
}
