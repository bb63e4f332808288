package payload

const (
	WifiConfigLen = 96
	wifiSSIDLen   = 32
	wifiPassLen   = 64
)

// WifiConfig is the station credentials record. The device masks the
// passphrase when it reports its configuration.
type WifiConfig struct {
	SSID     string
	Password string
}

// EncodeWifiConfig always returns 96 bytes: SSID truncated to 31 bytes and the
// passphrase to 63, both null terminated.
func EncodeWifiConfig(ssid, password string) []byte {
	buf := make([]byte, WifiConfigLen)
	putCString(buf[:wifiSSIDLen], ssid)
	putCString(buf[wifiSSIDLen:], password)
	return buf
}

// DecodeWifiConfig reads whatever part of the record is present.
func DecodeWifiConfig(b []byte) WifiConfig {
	return WifiConfig{
		SSID:     cString(field(b, 0, wifiSSIDLen)),
		Password: cString(field(b, wifiSSIDLen, wifiPassLen)),
	}
}
