package util

import "time"

// Timings maps an operation name to its last duration in microseconds. Its
// type matches the fields of an influx point so it can be merged directly.
type Timings map[string]interface{}

// Time runs op and records its duration under name. A nil Timings only runs
// op.
func (t Timings) Time(name string, op func()) {
	start := time.Now()
	op()
	if t != nil {
		t[name] = time.Since(start).Microseconds()
	}
}
