package schema

import "fmt"

// CommandID is the 8-bit command code carried in byte 0 of a command frame.
type CommandID uint8

const (
	CmdGetSensorData    CommandID = 0x01
	CmdGetSystemStatus  CommandID = 0x02
	CmdSetPlantProfile  CommandID = 0x03
	CmdGetHistoryData   CommandID = 0x04
	CmdSystemReset      CommandID = 0x05
	CmdGetDeviceInfo    CommandID = 0x06
	CmdSetTime          CommandID = 0x07
	CmdGetConfig        CommandID = 0x08
	CmdSetConfig        CommandID = 0x09
	CmdGetTimeData      CommandID = 0x0A
	CmdGetSwitchStatus  CommandID = 0x0B
	CmdGetPlantProfile  CommandID = 0x0C
	CmdSetWifiConfig    CommandID = 0x0D
	CmdGetWifiConfig    CommandID = 0x0E
	CmdWifiConnect      CommandID = 0x0F
	CmdGetTimezone      CommandID = 0x10
	CmdSyncTime         CommandID = 0x11
	CmdWifiDisconnect   CommandID = 0x12
	CmdSaveWifiConfig   CommandID = 0x13
	CmdSavePlantProfile CommandID = 0x14
	CmdSetTimezone      CommandID = 0x15
	CmdSaveTimezone     CommandID = 0x16
	CmdControlLED       CommandID = 0x18
	CmdSetLEDBrightness CommandID = 0x19
	CmdGetSensorDataV2  CommandID = 0x21
)

// ResponseKind names the payload structure a successful response carries.
type ResponseKind uint8

const (
	KindNone ResponseKind = iota
	KindSensorReading
	KindSystemStatus
	KindPlantProfile
	KindDeviceInfo
	KindWifiConfig
	KindTimezone
	KindTimeData
	KindSwitchStatus
	KindRaw
)

func (k ResponseKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSensorReading:
		return "sensor_reading"
	case KindSystemStatus:
		return "system_status"
	case KindPlantProfile:
		return "plant_profile"
	case KindDeviceInfo:
		return "device_info"
	case KindWifiConfig:
		return "wifi_config"
	case KindTimezone:
		return "timezone"
	case KindTimeData:
		return "time_data"
	case KindSwitchStatus:
		return "switch_status"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Command describes one entry of the command table.
type Command struct {
	ID       CommandID
	Name     string
	Response ResponseKind
}

var commands = map[CommandID]Command{
	CmdGetSensorData:    {CmdGetSensorData, "get-sensor-data", KindSensorReading},
	CmdGetSystemStatus:  {CmdGetSystemStatus, "get-system-status", KindSystemStatus},
	CmdSetPlantProfile:  {CmdSetPlantProfile, "set-plant-profile", KindNone},
	CmdGetHistoryData:   {CmdGetHistoryData, "get-history-data", KindRaw},
	CmdSystemReset:      {CmdSystemReset, "system-reset", KindNone},
	CmdGetDeviceInfo:    {CmdGetDeviceInfo, "get-device-info", KindDeviceInfo},
	CmdSetTime:          {CmdSetTime, "set-time", KindNone},
	CmdGetConfig:        {CmdGetConfig, "get-config", KindRaw},
	CmdSetConfig:        {CmdSetConfig, "set-config", KindNone},
	CmdGetTimeData:      {CmdGetTimeData, "get-time-data", KindTimeData},
	CmdGetSwitchStatus:  {CmdGetSwitchStatus, "get-switch-status", KindSwitchStatus},
	CmdGetPlantProfile:  {CmdGetPlantProfile, "get-plant-profile", KindPlantProfile},
	CmdSetWifiConfig:    {CmdSetWifiConfig, "set-wifi-config", KindNone},
	CmdGetWifiConfig:    {CmdGetWifiConfig, "get-wifi-config", KindWifiConfig},
	CmdWifiConnect:      {CmdWifiConnect, "wifi-connect", KindNone},
	CmdGetTimezone:      {CmdGetTimezone, "get-timezone", KindTimezone},
	CmdSyncTime:         {CmdSyncTime, "sync-time", KindNone},
	CmdWifiDisconnect:   {CmdWifiDisconnect, "wifi-disconnect", KindNone},
	CmdSaveWifiConfig:   {CmdSaveWifiConfig, "save-wifi-config", KindNone},
	CmdSavePlantProfile: {CmdSavePlantProfile, "save-plant-profile", KindNone},
	CmdSetTimezone:      {CmdSetTimezone, "set-timezone", KindNone},
	CmdSaveTimezone:     {CmdSaveTimezone, "save-timezone", KindNone},
	CmdControlLED:       {CmdControlLED, "control-led", KindNone},
	CmdSetLEDBrightness: {CmdSetLEDBrightness, "set-led-brightness", KindNone},
	CmdGetSensorDataV2:  {CmdGetSensorDataV2, "get-sensor-data-v2", KindSensorReading},
}

// Lookup returns the table entry for id.
func Lookup(id CommandID) (Command, bool) {
	c, ok := commands[id]
	return c, ok
}

// ResponseKindOf returns KindRaw for ids missing from the table so unknown
// commands still hand their payload back untouched.
func ResponseKindOf(id CommandID) ResponseKind {
	if c, ok := commands[id]; ok {
		return c.Response
	}
	return KindRaw
}

func (id CommandID) String() string {
	if c, ok := commands[id]; ok {
		return c.Name
	}
	return fmt.Sprintf("cmd(0x%02x)", uint8(id))
}

// Status is the 8-bit response status code.
type Status uint8

const (
	StatusSuccess          Status = 0x00
	StatusError            Status = 0x01
	StatusInvalidCommand   Status = 0x02
	StatusInvalidParameter Status = 0x03
	StatusBusy             Status = 0x04
	StatusNotSupported     Status = 0x05
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusInvalidCommand:
		return "invalid_command"
	case StatusInvalidParameter:
		return "invalid_parameter"
	case StatusBusy:
		return "busy"
	case StatusNotSupported:
		return "not_supported"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}
