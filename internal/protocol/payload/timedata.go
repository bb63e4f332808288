package payload

const TimeDataLen = CalendarLen + 4*4

// TimeData is the stored sample nearest to a requested minute. Note the float
// order differs from SensorReading: temperature comes first.
type TimeData struct {
	Time         Calendar
	Temperature  float32
	Humidity     float32
	Lux          float32
	SoilMoisture float32
}

// EncodeTimeDataRequest is the get-time-data request body.
func EncodeTimeDataRequest(at Calendar) []byte {
	return EncodeCalendar(at)
}

func DecodeTimeData(b []byte) (TimeData, error) {
	if len(b) < TimeDataLen {
		return TimeData{}, truncated("time data", TimeDataLen, len(b))
	}
	d := TimeData{Time: decodeCalendar(b)}
	readFloats(b[CalendarLen:], &d.Temperature, &d.Humidity, &d.Lux, &d.SoilMoisture)
	return d, nil
}

func EncodeTimeData(d TimeData) []byte {
	buf := make([]byte, TimeDataLen)
	putCalendar(buf, d.Time)
	writeFloats(buf[CalendarLen:], d.Temperature, d.Humidity, d.Lux, d.SoilMoisture)
	return buf
}
