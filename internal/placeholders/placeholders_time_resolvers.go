package placeholders

import (
	"strconv"
	"time"
)

func resolveUnixTimestamp() (string, error) {
	return strconv.FormatInt(time.Now().UTC().Unix(), 10), nil
}

func resolveISO8601Timestamp() (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

// resolveDateStamp yields a compact UTC date (20060102), handy for image
// tags and namespace annotations.
func resolveDateStamp() (string, error) {
	return time.Now().UTC().Format("20060102"), nil
}
