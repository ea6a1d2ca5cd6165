package mavlink

import (
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v2/pkg/frame"
	"github.com/bluenviron/gomavlib/v2/pkg/message"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// Translate converts a decoded frame into an engine message. Message kinds
// the aggregator does not use yield a nil Payload.
func Translate(fr frame.Frame, ch telemetry.Channel) telemetry.Message {
	return telemetry.Message{
		Channel:     ch,
		SystemID:    fr.GetSystemID(),
		ComponentID: fr.GetComponentID(),
		Payload:     payload(fr.GetMessage()),
	}
}

func payload(m message.Message) telemetry.Payload {
	switch m := m.(type) {
	case *ardupilotmega.MessageGlobalPositionInt:
		return telemetry.Position{Lat: m.Lat, Lon: m.Lon, Alt: m.Alt}
	case *ardupilotmega.MessageAttitude:
		return telemetry.Attitude{Roll: m.Roll, Pitch: m.Pitch, Yaw: m.Yaw}
	case *ardupilotmega.MessageVfrHud:
		return telemetry.VFR{Airspeed: m.Airspeed, Groundspeed: m.Groundspeed, Climb: m.Climb}
	case *ardupilotmega.MessageNavControllerOutput:
		return telemetry.NavOutput{WPDist: m.WpDist}
	case *ardupilotmega.MessageMissionCount:
		return telemetry.MissionCount{Count: m.Count}
	case *ardupilotmega.MessageMissionCurrent:
		return telemetry.MissionCurrent{Seq: m.Seq, Total: m.Total}
	case *ardupilotmega.MessageMissionItemInt:
		return telemetry.MissionItem{Seq: m.Seq, X: m.X, Y: m.Y, Z: m.Z}
	case *ardupilotmega.MessageSysStatus:
		return telemetry.SystemStatus{VoltageBattery: m.VoltageBattery, CurrentBattery: m.CurrentBattery}
	case *ardupilotmega.MessageGpsRawInt:
		return telemetry.GPSStatus{EPH: m.Eph}
	case *ardupilotmega.MessageServoOutputRaw:
		return telemetry.ServoOutput{Raw: [16]uint16{
			m.Servo1Raw, m.Servo2Raw, m.Servo3Raw, m.Servo4Raw,
			m.Servo5Raw, m.Servo6Raw, m.Servo7Raw, m.Servo8Raw,
			m.Servo9Raw, m.Servo10Raw, m.Servo11Raw, m.Servo12Raw,
			m.Servo13Raw, m.Servo14Raw, m.Servo15Raw, m.Servo16Raw,
		}}
	case *ardupilotmega.MessageWind:
		return telemetry.Wind{Speed: m.Speed}
	default:
		return nil
	}
}
