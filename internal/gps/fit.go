package gps

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tormoder/fit"
)

// ErrNoActivity is returned for FIT files that are not activity files.
var ErrNoActivity = errors.New("gps: fit file has no activity")

// ReadFIT extracts the GPS records of a FIT activity file (watch or bike
// computer export).
func ReadFIT(r io.Reader, sourceID string) (Track, error) {
	data, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("gps: decode fit: %w", err)
	}
	activity, err := data.Activity()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoActivity, err)
	}

	var track Track
	for _, rec := range activity.Records {
		if rec == nil || rec.PositionLat.Invalid() || rec.PositionLong.Invalid() {
			continue
		}
		f := Fix{
			Timestamp: rec.Timestamp.UTC(),
			SourceID:  sourceID,
			Latitude:  rec.PositionLat.Degrees(),
			Longitude: rec.PositionLong.Degrees(),
			Validity:  "A",
		}
		if alt := rec.GetEnhancedAltitudeScaled(); !math.IsNaN(alt) {
			f.Altitude = alt
		} else if alt := rec.GetAltitudeScaled(); !math.IsNaN(alt) {
			f.Altitude = alt
		}
		if v := rec.GetEnhancedSpeedScaled(); !math.IsNaN(v) {
			f.Speed = v
		} else if v := rec.GetSpeedScaled(); !math.IsNaN(v) {
			f.Speed = v
		}
		track = append(track, f)
	}
	track.Sort()
	return track, nil
}
