package telemetry

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/banshee-data/telemetry.report/internal/geo"
)

// Waypoint is one retrieved mission item.
type Waypoint struct {
	Seq       int     `json:"seq"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Record is the aggregate vehicle state. Pointer fields are nil until the
// first message that sets them. The aggregator replaces pointers rather than
// writing through them, so a shallow copy only needs Waypoints cloned.
type Record struct {
	SysID           *int       `json:"sysid"`
	Lat             *float64   `json:"lat"`
	Lon             *float64   `json:"lon"`
	Alt             *float64   `json:"alt"`
	DistTraveled    *float64   `json:"dist_traveled"`
	WPDist          *float64   `json:"wp_dist"`
	DistToHome      float64    `json:"dist_to_home"`
	VerticalSpeed   float64    `json:"vertical_speed"`
	Groundspeed     float64    `json:"groundspeed"`
	WindVel         float64    `json:"wind_vel"`
	Airspeed        float64    `json:"airspeed"`
	Roll            float64    `json:"roll"`
	Pitch           float64    `json:"pitch"`
	Yaw             float64    `json:"yaw"`
	TimeInAir       float64    `json:"time_in_air"`
	TimeInAirMinSec string     `json:"time_in_air_min_sec"`
	GPSHDOP         float64    `json:"gps_hdop"`
	TOH             *float64   `json:"toh"`
	TOT             *float64   `json:"tot"`
	BatteryVoltage  float64    `json:"battery_voltage"`
	BatteryCurrent  float64    `json:"battery_current"`
	Ch3Percent      *string    `json:"ch3percent"`
	Ch3Out          *int       `json:"ch3out"`
	Ch4Out          *int       `json:"ch4out"`
	Ch5Out          *int       `json:"ch5out"`
	Ch6Out          *int       `json:"ch6out"`
	Ch7Out          *int       `json:"ch7out"`
	Ch8Out          *int       `json:"ch8out"`
	Ch9Out          *int       `json:"ch9out"`
	Ch10Out         *int       `json:"ch10out"`
	Ch11Out         *int       `json:"ch11out"`
	Ch12Out         *int       `json:"ch12out"`
	Home            geo.Point  `json:"home"`
	WaypointsCount  int        `json:"waypoints_count"`
	Waypoints       []Waypoint `json:"waypoints"`
}

// NewRecord returns a record at its start-of-run defaults.
func NewRecord(home geo.Point) Record {
	return Record{
		TimeInAirMinSec: "0.00",
		Home:            home,
		Waypoints:       []Waypoint{},
	}
}

// Clone returns an independent copy of r.
func (r Record) Clone() Record {
	c := r
	c.Waypoints = slices.Clone(r.Waypoints)
	if c.Waypoints == nil {
		c.Waypoints = []Waypoint{}
	}
	return c
}

// servoOut returns pointers to ch3out..ch12out in channel order.
func (r *Record) servoOut() []**int {
	return []**int{
		&r.Ch3Out, &r.Ch4Out, &r.Ch5Out, &r.Ch6Out, &r.Ch7Out,
		&r.Ch8Out, &r.Ch9Out, &r.Ch10Out, &r.Ch11Out, &r.Ch12Out,
	}
}

// Field is one named value in presentation order. Value is nil for unset
// nullable fields.
type Field struct {
	Name  string
	Value any
}

// Fields lists the record in presentation order.
func (r Record) Fields() []Field {
	fields := []Field{
		{"sysid", derefInt(r.SysID)},
		{"lat", derefFloat(r.Lat)},
		{"lon", derefFloat(r.Lon)},
		{"alt", derefFloat(r.Alt)},
		{"dist_traveled", derefFloat(r.DistTraveled)},
		{"wp_dist", derefFloat(r.WPDist)},
		{"dist_to_home", r.DistToHome},
		{"vertical_speed", r.VerticalSpeed},
		{"groundspeed", r.Groundspeed},
		{"wind_vel", r.WindVel},
		{"airspeed", r.Airspeed},
		{"roll", r.Roll},
		{"pitch", r.Pitch},
		{"yaw", r.Yaw},
		{"time_in_air", r.TimeInAir},
		{"time_in_air_min_sec", r.TimeInAirMinSec},
		{"gps_hdop", r.GPSHDOP},
		{"toh", derefFloat(r.TOH)},
		{"tot", derefFloat(r.TOT)},
		{"battery_voltage", r.BatteryVoltage},
		{"battery_current", r.BatteryCurrent},
	}
	if r.Ch3Percent != nil {
		fields = append(fields, Field{"ch3percent", *r.Ch3Percent})
	} else {
		fields = append(fields, Field{"ch3percent", nil})
	}
	for i, ch := range r.servoOut() {
		fields = append(fields, Field{fmt.Sprintf("ch%dout", i+3), derefInt(*ch)})
	}
	fields = append(fields,
		Field{"home", r.Home.String()},
		Field{"waypoints_count", r.WaypointsCount},
		Field{"waypoints", r.Waypoints},
	)
	return fields
}

// String renders the record as {name=value, ...} in presentation order.
func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(FormatValue(f.Value))
	}
	b.WriteByte('}')
	return b.String()
}

// FormatValue renders a Field value the way the text sinks print it.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	case []Waypoint:
		parts := make([]string, len(v))
		for i, wp := range v {
			parts[i] = wp.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

func (w Waypoint) String() string {
	return fmt.Sprintf("{seq=%d, lat=%s, lon=%s, alt=%s}", w.Seq,
		strconv.FormatFloat(w.Latitude, 'f', -1, 64),
		strconv.FormatFloat(w.Longitude, 'f', -1, 64),
		strconv.FormatFloat(w.Altitude, 'f', -1, 64))
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
