package gps

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Receiver error budget used to turn HDOP into meters.
const uere = 2.5

// Decoder accumulates NMEA sentences into fixes. GGA contributes altitude
// and accuracy; each RMC completes one fix.
type Decoder struct {
	SourceID string

	altitude float64
	accuracy float64
}

// Feed parses one sentence. It returns ok=true when the sentence was an
// RMC that completed a valid fix. Lines that are not sentences are ignored.
func (d *Decoder) Feed(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, fmt.Errorf("nmea: %w", err)
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality != nmea.Invalid {
			d.altitude = m.Altitude
			d.accuracy = m.HDOP * uere
		}
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		fix := Fix{
			Timestamp: rmcTime(m.Date, m.Time),
			SourceID:  d.SourceID,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Altitude:  d.altitude,
			Speed:     m.Speed * KnotsToMS,
			Course:    m.Course,
			Accuracy:  d.accuracy,
			Validity:  m.Validity,
		}
		return fix, fix.Valid(), nil
	}
	return Fix{}, false, nil
}

func rmcTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Time{}
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

// ReadNMEA decodes a whole NMEA log. Malformed sentences are skipped and
// counted.
func ReadNMEA(r io.Reader, sourceID string) (Track, int, error) {
	dec := &Decoder{SourceID: sourceID}
	var track Track
	bad := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fix, ok, err := dec.Feed(sc.Text())
		if err != nil {
			bad++
			continue
		}
		if ok {
			track = append(track, fix)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, bad, err
	}
	track.Sort()
	return track, bad, nil
}
