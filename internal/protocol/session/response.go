package session

import (
	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/protocol/schema"
)

// Response is the decoded result of one command. Kind says which of the typed
// fields is set; it is chosen by the command that was sent, never by the
// payload shape.
type Response struct {
	Command schema.CommandID
	Kind    schema.ResponseKind
	Frame   frame.ResponseFrame

	Sensor   *payload.SensorReading
	Status   *payload.SystemStatus
	Profile  *payload.PlantProfile
	Info     *payload.DeviceInfo
	Wifi     *payload.WifiConfig
	TimeData *payload.TimeData
	Timezone string
	SwitchOn bool
	Raw      []byte
}

// DecodeResponse hands f.Payload to the decoder registered for cmd. A zero
// profile schema is detected from the payload length.
func DecodeResponse(cmd schema.CommandID, f frame.ResponseFrame, profile payload.ProfileSchema) (Response, error) {
	r := Response{Command: cmd, Kind: schema.ResponseKindOf(cmd), Frame: f}
	body := f.Payload
	switch r.Kind {
	case schema.KindNone:
	case schema.KindSensorReading:
		v, err := payload.DecodeSensorReading(body)
		if err != nil {
			return Response{}, err
		}
		r.Sensor = &v
	case schema.KindSystemStatus:
		v, err := payload.DecodeSystemStatus(body)
		if err != nil {
			return Response{}, err
		}
		r.Status = &v
	case schema.KindPlantProfile:
		if profile == 0 {
			profile = payload.DetectProfileSchema(len(body))
		}
		v, err := payload.DecodePlantProfile(body, profile)
		if err != nil {
			return Response{}, err
		}
		r.Profile = &v
	case schema.KindDeviceInfo:
		v, err := payload.DecodeDeviceInfo(body)
		if err != nil {
			return Response{}, err
		}
		r.Info = &v
	case schema.KindWifiConfig:
		v := payload.DecodeWifiConfig(body)
		r.Wifi = &v
	case schema.KindTimeData:
		v, err := payload.DecodeTimeData(body)
		if err != nil {
			return Response{}, err
		}
		r.TimeData = &v
	case schema.KindTimezone:
		r.Timezone = payload.DecodeTimezone(body)
	case schema.KindSwitchStatus:
		on, err := payload.DecodeSwitchStatus(body)
		if err != nil {
			return Response{}, err
		}
		r.SwitchOn = on
	default:
		r.Raw = append([]byte(nil), body...)
	}
	return r, nil
}
