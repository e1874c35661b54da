package alert

import "time"

// jdUnixEpoch is the Julian Date of 1970-01-01 00:00:00 UTC.
const jdUnixEpoch = 2440587.5

// JDToTime converts a Julian Date to UTC wall-clock time.
// No leap-second handling.
func JDToTime(jd float64) time.Time {
	sec := (jd - jdUnixEpoch) * 86400.0
	return time.Unix(0, int64(sec*1e9)).UTC()
}

// TimeToJD converts UTC wall-clock time to a Julian Date.
func TimeToJD(t time.Time) float64 {
	return jdUnixEpoch + float64(t.UnixNano())/1e9/86400.0
}
