package tonewire

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
)

func (i *Instance) writePoint(name string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	tags["instance"] = i.id.String()
	i.writeAPI.WritePoint(influxdb2.NewPoint(name, tags, fields, ts))
}
