package format

import "time"

const (
	filetimeUnit       = 100                // FILETIME ticks are 100ns
	filetimeEpochDelta = 116444736000000000 // ticks between 1601-01-01 and 1970-01-01

	// Stamps beyond what int64 nanoseconds can carry (mid-2262) cannot be a
	// real hive write time and would overflow the conversion.
	filetimeCeiling = filetimeEpochDelta + (1<<63-1)/filetimeUnit
)

// FiletimeToTime converts a Windows FILETIME stamp to UTC time. Carved
// headers carry whatever bytes were on disk, so pre-Unix-epoch and absurdly
// far-future values convert to the zero time for the caller to suppress.
func FiletimeToTime(v uint64) time.Time {
	if v <= filetimeEpochDelta || v >= filetimeCeiling {
		return time.Time{}
	}
	return time.Unix(0, int64(v-filetimeEpochDelta)*filetimeUnit).UTC()
}

// TimeToFiletime converts a time.Time to a FILETIME stamp. Instants before
// the Unix epoch clamp to it.
func TimeToFiletime(t time.Time) uint64 {
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	return uint64(ns)/filetimeUnit + filetimeEpochDelta
}
