// Package telemetry maintains the aggregate vehicle state built from decoded
// MAVLink messages.
package telemetry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/telemetry.report/internal/geo"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// DefaultAirborneThreshold is the altitude in metres above which the vehicle
// is considered airborne.
const DefaultAirborneThreshold = 0.8

// DefaultHome is the home coordinate used when none is configured.
var DefaultHome = geo.Point{Lat: 35.0766971, Lon: 43.79}

// MissionTracker receives mission progress seen on the stream channel.
// Calls are made with the aggregator lock held and must not block.
type MissionTracker interface {
	OnMissionCountKnown(total int)
	OnItemReceived(seq int)
}

// UpdateFunc receives a copy of the record after every applied message.
type UpdateFunc func(Record)

// Options configures an Aggregator. Zero values select defaults.
type Options struct {
	Home              *geo.Point
	AirborneThreshold *float64
	Clock             timeutil.Clock
	Mission           MissionTracker
	OnUpdate          UpdateFunc
}

// Aggregator owns the telemetry record. Apply is the only writer.
type Aggregator struct {
	mu sync.Mutex

	record    Record
	home      geo.Point
	threshold float64
	clock     timeutil.Clock
	mission   MissionTracker
	onUpdate  UpdateFunc

	prevFix      *geo.Point
	airborne     bool
	episodeStart time.Time
	countKnown   bool
}

// NewAggregator creates an aggregator whose airborne episode clock starts now.
func NewAggregator(opts Options) *Aggregator {
	a := &Aggregator{
		home:      DefaultHome,
		threshold: DefaultAirborneThreshold,
		clock:     opts.Clock,
		mission:   opts.Mission,
		onUpdate:  opts.OnUpdate,
	}
	if opts.Home != nil {
		a.home = *opts.Home
	}
	if opts.AirborneThreshold != nil {
		a.threshold = *opts.AirborneThreshold
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}
	a.record = NewRecord(a.home)
	a.episodeStart = a.clock.Now()
	return a
}

// SetMissionTracker replaces the tracker that receives stream-channel
// mission messages.
func (a *Aggregator) SetMissionTracker(m MissionTracker) {
	a.mu.Lock()
	a.mission = m
	a.mu.Unlock()
}

// Apply folds one message into the record and recomputes derived fields.
func (a *Aggregator) Apply(msg Message) {
	a.mu.Lock()
	now := a.clock.Now()

	if msg.Channel == ChannelStream && a.record.SysID == nil {
		id := int(msg.SystemID)
		a.record.SysID = &id
	}

	switch p := msg.Payload.(type) {
	case Position:
		a.applyPosition(p, now)
	case Attitude:
		setDegrees(&a.record.Roll, p.Roll)
		setDegrees(&a.record.Pitch, p.Pitch)
		setDegrees(&a.record.Yaw, p.Yaw)
	case VFR:
		setFinite(&a.record.Airspeed, p.Airspeed)
		setFinite(&a.record.Groundspeed, p.Groundspeed)
		setFinite(&a.record.VerticalSpeed, p.Climb)
	case NavOutput:
		d := float64(p.WPDist)
		a.record.WPDist = &d
	case MissionCount:
		a.setWaypointsCount(int(p.Count), msg.Channel)
	case MissionCurrent:
		switch p.Total {
		case 0:
			// autopilot does not report the total
		case math.MaxUint16:
			a.setWaypointsCount(0, msg.Channel)
		default:
			a.setWaypointsCount(int(p.Total), msg.Channel)
		}
	case MissionItem:
		a.applyMissionItem(p, msg.Channel)
	case SystemStatus:
		if p.VoltageBattery != math.MaxUint16 {
			a.record.BatteryVoltage = float64(p.VoltageBattery) / 1000
		}
		if p.CurrentBattery != -1 {
			a.record.BatteryCurrent = float64(p.CurrentBattery) / 1000
		}
	case GPSStatus:
		if p.EPH != math.MaxUint16 {
			a.record.GPSHDOP = float64(p.EPH) / 100
		}
	case ServoOutput:
		a.applyServo(p)
	case Wind:
		setFinite(&a.record.WindVel, p.Speed)
	}

	a.updateTiming(now)
	a.updateETA()

	var snapshot Record
	notify := a.onUpdate
	if notify != nil {
		snapshot = a.record.Clone()
	}
	a.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}

// Snapshot returns a consistent copy of the record.
func (a *Aggregator) Snapshot() Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Clone()
}

// Airborne reports whether the last position put the vehicle above the threshold.
func (a *Aggregator) Airborne() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.airborne
}

func (a *Aggregator) applyPosition(p Position, now time.Time) {
	lat := float64(p.Lat) / 1e7
	lon := float64(p.Lon) / 1e7
	alt := float64(p.Alt) / 1000

	if alt > a.threshold && !a.airborne {
		a.airborne = true
		a.episodeStart = now
	} else if alt <= a.threshold && a.airborne {
		a.airborne = false
	}

	fix := geo.Point{Lat: lat, Lon: lon}
	if a.prevFix != nil {
		total := a.prevFix.DistanceTo(fix)
		if a.record.DistTraveled != nil {
			total += *a.record.DistTraveled
		}
		a.record.DistTraveled = &total
	}
	a.record.DistToHome = fix.DistanceTo(a.home)
	a.prevFix = &fix

	a.record.Lat = &lat
	a.record.Lon = &lon
	a.record.Alt = &alt
}

func (a *Aggregator) setWaypointsCount(n int, ch Channel) {
	a.record.WaypointsCount = n
	a.countKnown = true

	// drop items the vehicle no longer reports
	kept := make([]Waypoint, 0, len(a.record.Waypoints))
	for _, wp := range a.record.Waypoints {
		if wp.Seq < n {
			kept = append(kept, wp)
		}
	}
	a.record.Waypoints = kept

	if ch == ChannelStream && a.mission != nil {
		a.mission.OnMissionCountKnown(n)
	}
}

func (a *Aggregator) applyMissionItem(p MissionItem, ch Channel) {
	z := float64(p.Z)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return
	}
	seq := int(p.Seq)
	if a.countKnown && seq >= a.record.WaypointsCount {
		return
	}

	wp := Waypoint{
		Seq:       seq,
		Latitude:  float64(p.X) / 1e7,
		Longitude: float64(p.Y) / 1e7,
		Altitude:  z,
	}
	replaced := false
	for i := range a.record.Waypoints {
		if a.record.Waypoints[i].Seq == seq {
			a.record.Waypoints[i] = wp
			replaced = true
			break
		}
	}
	if !replaced {
		a.record.Waypoints = append(a.record.Waypoints, wp)
	}

	if ch == ChannelStream && a.mission != nil {
		a.mission.OnItemReceived(seq)
	}
}

func (a *Aggregator) applyServo(p ServoOutput) {
	for i, ch := range a.record.servoOut() {
		v := int(p.Raw[i+2])
		*ch = &v
	}
	pct := fmt.Sprintf("%.2f", (float64(p.Raw[2])-1000)/1000*100)
	a.record.Ch3Percent = &pct
}

func (a *Aggregator) updateTiming(now time.Time) {
	secs := now.Sub(a.episodeStart).Seconds()
	a.record.TimeInAir = secs
	whole := int(secs)
	a.record.TimeInAirMinSec = fmt.Sprintf("%d.%02d", whole/60, whole%60)
}

func (a *Aggregator) updateETA() {
	gs := a.record.Groundspeed
	if !(gs > 0) || math.IsInf(gs, 0) {
		return
	}
	if a.record.WPDist != nil {
		if tot, ok := roundedRatio(*a.record.WPDist, gs); ok {
			a.record.TOT = &tot
		}
	}
	if toh, ok := roundedRatio(a.record.DistToHome, gs); ok {
		a.record.TOH = &toh
	}
}

func roundedRatio(num, den float64) (float64, bool) {
	v := math.Round(num/den*100) / 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func setFinite(dst *float64, v float32) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	*dst = f
}

func setDegrees(dst *float64, rad float32) {
	f := float64(rad)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	*dst = f * 180 / math.Pi
}
