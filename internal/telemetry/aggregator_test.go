package telemetry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/geo"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeTracker struct {
	counts []int
	items  []int
}

func (f *fakeTracker) OnMissionCountKnown(total int) { f.counts = append(f.counts, total) }
func (f *fakeTracker) OnItemReceived(seq int)        { f.items = append(f.items, seq) }

func newTestAggregator(t *testing.T) (*Aggregator, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	return NewAggregator(Options{Clock: clock}), clock
}

func position(lat, lon, altMetres float64) Message {
	return Message{
		Channel: ChannelDatagram,
		Payload: Position{
			Lat: int32(math.Round(lat * 1e7)),
			Lon: int32(math.Round(lon * 1e7)),
			Alt: int32(math.Round(altMetres * 1000)),
		},
	}
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg, _ := newTestAggregator(t)
	rec := agg.Snapshot()

	assert.Nil(t, rec.SysID)
	assert.Nil(t, rec.Lat)
	assert.Nil(t, rec.DistTraveled)
	assert.Nil(t, rec.TOT)
	assert.Nil(t, rec.TOH)
	assert.Nil(t, rec.Ch3Out)
	assert.Equal(t, "0.00", rec.TimeInAirMinSec)
	assert.Equal(t, DefaultHome, rec.Home)
	assert.Equal(t, 0, rec.WaypointsCount)
	assert.NotNil(t, rec.Waypoints)
	assert.Empty(t, rec.Waypoints)
}

func TestApply_PositionScaling(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(Message{Payload: Position{Lat: 350766971, Lon: 437900000, Alt: 12345}})

	rec := agg.Snapshot()
	require.NotNil(t, rec.Lat)
	assert.InDelta(t, 35.0766971, *rec.Lat, 1e-9)
	assert.InDelta(t, 43.79, *rec.Lon, 1e-9)
	assert.InDelta(t, 12.345, *rec.Alt, 1e-9)
	assert.InDelta(t, 0, rec.DistToHome, 1e-9)
	assert.Nil(t, rec.DistTraveled, "first fix is only a baseline")
}

func TestApply_DistanceAccumulatesSegments(t *testing.T) {
	agg, _ := newTestAggregator(t)

	// roughly 1 km north, then back again
	fixes := [][2]float64{{10, 20}, {10.009, 20}, {10, 20}}
	for _, f := range fixes {
		agg.Apply(position(f[0], f[1], 0))
	}

	want := geo.Distance(10, 20, 10.009, 20) + geo.Distance(10.009, 20, 10, 20)
	rec := agg.Snapshot()
	require.NotNil(t, rec.DistTraveled)
	assert.InDelta(t, want, *rec.DistTraveled, 1e-9)
	assert.InDelta(t, 2.0, *rec.DistTraveled, 0.01)
	assert.InDelta(t, geo.Distance(10, 20, DefaultHome.Lat, DefaultHome.Lon), rec.DistToHome, 1e-9)
}

func TestApply_ThreeFixesNorth(t *testing.T) {
	agg, _ := newTestAggregator(t)
	lats := []float64{0, 0.009, 0.018}
	for _, lat := range lats {
		agg.Apply(position(lat, 0, 0))
	}

	want := geo.Distance(0, 0, 0.009, 0) + geo.Distance(0.009, 0, 0.018, 0)
	rec := agg.Snapshot()
	require.NotNil(t, rec.DistTraveled)
	assert.InDelta(t, want, *rec.DistTraveled, 1e-9)
}

func TestApply_ETARetainedAtZeroGroundspeed(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(position(DefaultHome.Lat+0.009, DefaultHome.Lon, 10))
	agg.Apply(Message{Payload: VFR{Airspeed: 11, Groundspeed: 10, Climb: 0.5}})
	agg.Apply(Message{Payload: NavOutput{WPDist: 100}})

	rec := agg.Snapshot()
	require.NotNil(t, rec.TOT)
	require.NotNil(t, rec.TOH)
	assert.Equal(t, 10.0, *rec.TOT)
	wantTOH := math.Round(rec.DistToHome/10*100) / 100
	assert.Equal(t, wantTOH, *rec.TOH)

	agg.Apply(Message{Payload: VFR{Groundspeed: 0}})
	agg.Apply(Message{Payload: NavOutput{WPDist: 500}})

	rec = agg.Snapshot()
	assert.Equal(t, 0.0, rec.Groundspeed)
	assert.Equal(t, 500.0, *rec.WPDist)
	assert.Equal(t, 10.0, *rec.TOT)
	assert.Equal(t, wantTOH, *rec.TOH)
	assert.False(t, math.IsNaN(*rec.TOT) || math.IsInf(*rec.TOT, 0))
}

func TestApply_NonFiniteFloatsIgnored(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(Message{Payload: VFR{Airspeed: 5, Groundspeed: 4, Climb: 1}})
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	agg.Apply(Message{Payload: VFR{Airspeed: nan, Groundspeed: inf, Climb: nan}})
	agg.Apply(Message{Payload: Attitude{Roll: nan, Pitch: inf, Yaw: nan}})
	agg.Apply(Message{Payload: Wind{Speed: nan}})

	rec := agg.Snapshot()
	assert.Equal(t, 5.0, rec.Airspeed)
	assert.Equal(t, 4.0, rec.Groundspeed)
	assert.Equal(t, 1.0, rec.VerticalSpeed)
	assert.Equal(t, 0.0, rec.Roll)
	assert.Equal(t, 0.0, rec.WindVel)
}

func TestApply_AirborneTransitions(t *testing.T) {
	agg, clock := newTestAggregator(t)

	clock.Advance(10 * time.Second)
	agg.Apply(position(1, 1, 0.5))
	assert.False(t, agg.Airborne())
	assert.InDelta(t, 10, agg.Snapshot().TimeInAir, 1e-9)

	clock.Advance(10 * time.Second)
	agg.Apply(position(1, 1, 1.0))
	assert.True(t, agg.Airborne())
	assert.InDelta(t, 0, agg.Snapshot().TimeInAir, 1e-9, "takeoff resets the episode")

	clock.Advance(5 * time.Second)
	agg.Apply(position(1, 1, 0.9))
	assert.True(t, agg.Airborne())
	assert.InDelta(t, 5, agg.Snapshot().TimeInAir, 1e-9)

	clock.Advance(5 * time.Second)
	agg.Apply(position(1, 1, 0.5))
	assert.False(t, agg.Airborne())
	assert.InDelta(t, 10, agg.Snapshot().TimeInAir, 1e-9, "landing does not reset")
}

func TestApply_ThresholdIsExclusive(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(position(1, 1, 0.8))
	assert.False(t, agg.Airborne())

	custom := 50.0
	agg = NewAggregator(Options{AirborneThreshold: &custom, Clock: timeutil.NewMockClock(epoch)})
	agg.Apply(position(1, 1, 10))
	assert.False(t, agg.Airborne())
}

func TestApply_TimeInAirFormat(t *testing.T) {
	agg, clock := newTestAggregator(t)
	clock.Advance(2*time.Minute + 35*time.Second + 400*time.Millisecond)
	agg.Apply(Message{})

	rec := agg.Snapshot()
	assert.Equal(t, "2.35", rec.TimeInAirMinSec)
	assert.InDelta(t, 155.4, rec.TimeInAir, 1e-9)

	clock.Advance(5 * time.Second)
	agg.Apply(Message{})
	assert.Equal(t, "2.40", agg.Snapshot().TimeInAirMinSec)
}

func TestApply_SysIDSetOnceFromStream(t *testing.T) {
	agg, _ := newTestAggregator(t)

	agg.Apply(Message{Channel: ChannelDatagram, SystemID: 9})
	assert.Nil(t, agg.Snapshot().SysID)

	agg.Apply(Message{Channel: ChannelStream, SystemID: 1})
	agg.Apply(Message{Channel: ChannelStream, SystemID: 2})

	rec := agg.Snapshot()
	require.NotNil(t, rec.SysID)
	assert.Equal(t, 1, *rec.SysID)
}

func TestApply_AttitudeDegrees(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(Message{Payload: Attitude{Roll: math.Pi / 2, Pitch: -math.Pi / 4, Yaw: math.Pi}})

	rec := agg.Snapshot()
	assert.InDelta(t, 90, rec.Roll, 1e-4)
	assert.InDelta(t, -45, rec.Pitch, 1e-4)
	assert.InDelta(t, 180, rec.Yaw, 1e-4)
}

func TestApply_BatteryAndGPSSentinels(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(Message{Payload: SystemStatus{VoltageBattery: 12600, CurrentBattery: 1530}})
	agg.Apply(Message{Payload: GPSStatus{EPH: 121}})

	rec := agg.Snapshot()
	assert.InDelta(t, 12.6, rec.BatteryVoltage, 1e-9)
	assert.InDelta(t, 1.53, rec.BatteryCurrent, 1e-9)
	assert.InDelta(t, 1.21, rec.GPSHDOP, 1e-9)

	agg.Apply(Message{Payload: SystemStatus{VoltageBattery: math.MaxUint16, CurrentBattery: -1}})
	agg.Apply(Message{Payload: GPSStatus{EPH: math.MaxUint16}})

	rec = agg.Snapshot()
	assert.InDelta(t, 12.6, rec.BatteryVoltage, 1e-9)
	assert.InDelta(t, 1.53, rec.BatteryCurrent, 1e-9)
	assert.InDelta(t, 1.21, rec.GPSHDOP, 1e-9)
}

func TestApply_ServoOutput(t *testing.T) {
	agg, _ := newTestAggregator(t)
	var raw [16]uint16
	for i := range raw {
		raw[i] = uint16(1000 + 10*i)
	}
	raw[2] = 1500
	agg.Apply(Message{Payload: ServoOutput{Raw: raw}})

	rec := agg.Snapshot()
	require.NotNil(t, rec.Ch3Percent)
	assert.Equal(t, "50.00", *rec.Ch3Percent)
	assert.Equal(t, 1500, *rec.Ch3Out)
	assert.Equal(t, 1030, *rec.Ch4Out)
	assert.Equal(t, 1110, *rec.Ch12Out)
}

func TestApply_MissionItemsReplaceBySeq(t *testing.T) {
	tracker := &fakeTracker{}
	agg := NewAggregator(Options{Clock: timeutil.NewMockClock(epoch), Mission: tracker})

	agg.Apply(Message{Channel: ChannelStream, Payload: MissionCount{Count: 3}})
	agg.Apply(Message{Channel: ChannelStream, Payload: MissionItem{Seq: 0, X: 350000000, Y: 430000000, Z: 20}})
	agg.Apply(Message{Channel: ChannelStream, Payload: MissionItem{Seq: 2, X: 350020000, Y: 430020000, Z: 40}})
	agg.Apply(Message{Channel: ChannelStream, Payload: MissionItem{Seq: 0, X: 350010000, Y: 430010000, Z: 25}})
	agg.Apply(Message{Channel: ChannelStream, Payload: MissionItem{Seq: 5, X: 1, Y: 1, Z: 1}})

	rec := agg.Snapshot()
	want := []Waypoint{
		{Seq: 0, Latitude: 35.001, Longitude: 43.001, Altitude: 25},
		{Seq: 2, Latitude: 35.002, Longitude: 43.002, Altitude: 40},
	}
	if diff := cmp.Diff(want, rec.Waypoints); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, rec.WaypointsCount)
	assert.Equal(t, []int{3}, tracker.counts)
	assert.Equal(t, []int{0, 2, 0}, tracker.items, "out of range items are not forwarded")
}

func TestApply_MissionDatagramNotForwarded(t *testing.T) {
	tracker := &fakeTracker{}
	agg := NewAggregator(Options{Clock: timeutil.NewMockClock(epoch), Mission: tracker})

	agg.Apply(Message{Channel: ChannelDatagram, Payload: MissionCurrent{Seq: 1, Total: 4}})
	agg.Apply(Message{Channel: ChannelDatagram, Payload: MissionItem{Seq: 1, X: 10, Y: 10, Z: 5}})

	rec := agg.Snapshot()
	assert.Equal(t, 4, rec.WaypointsCount)
	assert.Len(t, rec.Waypoints, 1)
	assert.Empty(t, tracker.counts)
	assert.Empty(t, tracker.items)
}

func TestApply_MissionCurrentStartsDownload(t *testing.T) {
	tracker := &fakeTracker{}
	agg := NewAggregator(Options{Clock: timeutil.NewMockClock(epoch), Mission: tracker})

	agg.Apply(Message{Channel: ChannelStream, Payload: MissionCurrent{Seq: 0, Total: 20}})
	assert.Equal(t, 20, agg.Snapshot().WaypointsCount)
	assert.Equal(t, []int{20}, tracker.counts)

	agg.Apply(Message{Channel: ChannelStream, Payload: MissionCurrent{Seq: 1, Total: 0}})
	assert.Equal(t, 20, agg.Snapshot().WaypointsCount)
	assert.Equal(t, []int{20}, tracker.counts, "zero total is not a count")

	agg.Apply(Message{Channel: ChannelStream, Payload: MissionCurrent{Seq: 0, Total: math.MaxUint16}})
	assert.Equal(t, 0, agg.Snapshot().WaypointsCount)
	assert.Equal(t, []int{20, 0}, tracker.counts)

	agg.Apply(Message{Channel: ChannelDatagram, Payload: MissionCurrent{Seq: 0, Total: 7}})
	assert.Equal(t, 7, agg.Snapshot().WaypointsCount)
	assert.Equal(t, []int{20, 0}, tracker.counts)
}

func TestApply_MissionCurrentTotals(t *testing.T) {
	agg, _ := newTestAggregator(t)

	agg.Apply(Message{Payload: MissionCurrent{Seq: 0, Total: 5}})
	assert.Equal(t, 5, agg.Snapshot().WaypointsCount)

	agg.Apply(Message{Payload: MissionCurrent{Seq: 1, Total: 0}})
	assert.Equal(t, 5, agg.Snapshot().WaypointsCount, "zero total means unsupported")

	agg.Apply(Message{Payload: MissionCurrent{Seq: 0, Total: math.MaxUint16}})
	assert.Equal(t, 0, agg.Snapshot().WaypointsCount)
}

func TestApply_CountShrinkTrimsWaypoints(t *testing.T) {
	agg, _ := newTestAggregator(t)
	for seq := uint16(0); seq < 4; seq++ {
		agg.Apply(Message{Payload: MissionItem{Seq: seq, Z: 1}})
	}
	assert.Len(t, agg.Snapshot().Waypoints, 4)

	agg.Apply(Message{Payload: MissionCount{Count: 2}})
	rec := agg.Snapshot()
	assert.Len(t, rec.Waypoints, 2)
	assert.LessOrEqual(t, len(rec.Waypoints), rec.WaypointsCount)
}

func TestApply_UnknownPayloadStillUpdatesTiming(t *testing.T) {
	agg, clock := newTestAggregator(t)
	clock.Advance(3 * time.Second)
	agg.Apply(Message{Channel: ChannelDatagram})
	assert.InDelta(t, 3, agg.Snapshot().TimeInAir, 1e-9)
}

func TestApply_OnUpdateReceivesCopy(t *testing.T) {
	var got []Record
	agg := NewAggregator(Options{
		Clock:    timeutil.NewMockClock(epoch),
		OnUpdate: func(r Record) { got = append(got, r) },
	})

	agg.Apply(Message{Payload: MissionItem{Seq: 0, Z: 1}})
	agg.Apply(Message{Payload: MissionItem{Seq: 0, Z: 2}})

	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Waypoints[0].Altitude)
	assert.Equal(t, 2.0, got[1].Waypoints[0].Altitude)
}

func TestSnapshot_IsIndependent(t *testing.T) {
	agg, _ := newTestAggregator(t)
	agg.Apply(Message{Payload: MissionItem{Seq: 0, Z: 1}})

	snap := agg.Snapshot()
	snap.Waypoints[0].Altitude = 99
	snap.Waypoints = append(snap.Waypoints, Waypoint{Seq: 7})

	rec := agg.Snapshot()
	assert.Equal(t, 1.0, rec.Waypoints[0].Altitude)
	assert.Len(t, rec.Waypoints, 1)
}

func TestApply_ConcurrentNoTornSnapshots(t *testing.T) {
	agg := NewAggregator(Options{})

	const perWriter = 500
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(offset float64) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				v := offset + float64(i)*0.001
				agg.Apply(position(v, v, v))
			}
		}(float64(w) * 10)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		rec := agg.Snapshot()
		if rec.Lat != nil {
			require.Equal(t, *rec.Lat, *rec.Lon)
			require.Equal(t, *rec.Lat, *rec.Alt)
			require.InDelta(t, geo.Distance(*rec.Lat, *rec.Lon, DefaultHome.Lat, DefaultHome.Lon), rec.DistToHome, 1e-9)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
