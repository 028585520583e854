package util

import "github.com/influxdata/influxdb-client-go/api/write"

// MockWriteAPI discards everything written to it. It stands in for an
// InfluxDB writer when metrics are not configured.
type MockWriteAPI struct{}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

// Errors returns nil; a nil channel is never ready.
func (m *MockWriteAPI) Errors() <-chan error { return nil }
