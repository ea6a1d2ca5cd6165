package telemetry

// Channel identifies the transport a message arrived on.
type Channel int

const (
	ChannelDatagram Channel = iota
	ChannelStream
)

func (c Channel) String() string {
	switch c {
	case ChannelDatagram:
		return "datagram"
	case ChannelStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Message is one decoded vehicle message tagged with its origin.
type Message struct {
	Channel     Channel
	SystemID    uint8
	ComponentID uint8
	Payload     Payload
}

// Payload is implemented by every message kind the aggregator understands.
// Values carry wire units; scaling happens in Aggregator.Apply.
type Payload interface {
	kind() string
}

// Position carries GLOBAL_POSITION_INT: degrees·1e7 and millimetres.
type Position struct {
	Lat int32
	Lon int32
	Alt int32
}

// Attitude angles are radians.
type Attitude struct {
	Roll  float32
	Pitch float32
	Yaw   float32
}

// VFR carries the VFR_HUD speeds in m/s.
type VFR struct {
	Airspeed    float32
	Groundspeed float32
	Climb       float32
}

// NavOutput carries the vehicle-reported distance to the active waypoint in metres.
type NavOutput struct {
	WPDist uint16
}

// MissionCount is the authoritative number of mission items.
type MissionCount struct {
	Count uint16
}

// MissionCurrent reports the active item and, on newer autopilots, the mission total.
// A zero Total means the field is not supported; 0xFFFF means no mission is loaded.
type MissionCurrent struct {
	Seq   uint16
	Total uint16
}

// MissionItem is one waypoint; X/Y are degrees·1e7, Z is metres.
type MissionItem struct {
	Seq uint16
	X   int32
	Y   int32
	Z   float32
}

// SystemStatus battery readings as sent by SYS_STATUS.
// 0xFFFF and -1 are the protocol's "unknown" values.
type SystemStatus struct {
	VoltageBattery uint16
	CurrentBattery int16
}

// GPSStatus carries horizontal dilution in cm; 0xFFFF is unknown.
type GPSStatus struct {
	EPH uint16
}

// ServoOutput holds raw PWM for servo outputs 1..16 (index 0 is servo 1).
type ServoOutput struct {
	Raw [16]uint16
}

// Wind speed in m/s.
type Wind struct {
	Speed float32
}

func (Position) kind() string       { return "position" }
func (Attitude) kind() string       { return "attitude" }
func (VFR) kind() string            { return "vfr" }
func (NavOutput) kind() string      { return "nav_output" }
func (MissionCount) kind() string   { return "mission_count" }
func (MissionCurrent) kind() string { return "mission_current" }
func (MissionItem) kind() string    { return "mission_item" }
func (SystemStatus) kind() string   { return "system_status" }
func (GPSStatus) kind() string      { return "gps_status" }
func (ServoOutput) kind() string    { return "servo_output" }
func (Wind) kind() string           { return "wind" }

// Kind returns a short name for the payload type, or "unknown".
func (m Message) Kind() string {
	if m.Payload == nil {
		return "unknown"
	}
	return m.Payload.kind()
}
