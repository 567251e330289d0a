package utils

import (
	"time"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutCompact  = "20060102150405"
)

// EAT is the gateway's reference timezone (UTC+3, no DST).
var EAT = time.FixedZone("EAT", 3*60*60)

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatDateTime formats time to "YYYY-MM-DD HH:MM:SS" in EAT.
func FormatDateTime(t time.Time) string {
	return t.In(EAT).Format(layoutDateTime)
}

// GatewayTimestamp formats time as YYYYMMDDHHMMSS in EAT.
func GatewayTimestamp(t time.Time) string {
	return t.In(EAT).Format(layoutCompact)
}
