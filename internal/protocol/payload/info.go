package payload

import (
	"encoding/binary"
	"time"
)

const DeviceInfoLen = 32 + 16 + 16 + 4 + 4

type DeviceInfo struct {
	Name            string
	FirmwareVersion string
	HardwareVersion string
	UptimeSeconds   uint32
	TotalReadings   uint32
}

func (d DeviceInfo) Uptime() time.Duration {
	return time.Duration(d.UptimeSeconds) * time.Second
}

func DecodeDeviceInfo(b []byte) (DeviceInfo, error) {
	if len(b) < DeviceInfoLen {
		return DeviceInfo{}, truncated("device info", DeviceInfoLen, len(b))
	}
	return DeviceInfo{
		Name:            cString(b[0:32]),
		FirmwareVersion: cString(b[32:48]),
		HardwareVersion: cString(b[48:64]),
		UptimeSeconds:   binary.LittleEndian.Uint32(b[64:]),
		TotalReadings:   binary.LittleEndian.Uint32(b[68:]),
	}, nil
}

func EncodeDeviceInfo(d DeviceInfo) []byte {
	buf := make([]byte, DeviceInfoLen)
	putCString(buf[0:32], d.Name)
	putCString(buf[32:48], d.FirmwareVersion)
	putCString(buf[48:64], d.HardwareVersion)
	binary.LittleEndian.PutUint32(buf[64:], d.UptimeSeconds)
	binary.LittleEndian.PutUint32(buf[68:], d.TotalReadings)
	return buf
}
