package alert

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"ingestpipe/internal/model"
)

// Fingerprint derives the deterministic identity of an alert from its
// device, type, and coordinates (spec.md §4.3). The message is
// deliberately excluded: alerts describing the same sensor situation
// with differing message text collapse to one record.
func Fingerprint(deviceID string, alertType model.AlertType, lat, lon float64, hasCoords bool) string {
	latStr, lonStr := "null", "null"
	if hasCoords {
		latStr, lonStr = formatCoord(lat), formatCoord(lon)
	}
	raw := fmt.Sprintf("%s:%s:%s:%s", deviceID, alertType, latStr, lonStr)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// formatCoord mirrors the source platform's default float-to-string
// conversion, which always shows a decimal point (e.g. 95.0, not 95).
func formatCoord(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
