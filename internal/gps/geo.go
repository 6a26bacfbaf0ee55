package gps

import (
	"math"
	"sort"
	"time"
)

const (
	// Mean Earth radius in meters.
	earthRadius = 6370000
)

func sq(n float64) float64 { return n * n }

func rad(d float64) float64 { return d * math.Pi / 180 }

// Distance returns the haversine distance in meters between two fixes.
func Distance(a, b Fix) float64 {
	return dist(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func dist(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	h := sq(math.Sin(dLat/2)) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*sq(math.Sin(dLon/2))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadius * c
}

// Bearing returns the initial course from a to b in degrees [0,360).
func Bearing(a, b Fix) float64 {
	lat1, lat2 := rad(a.Latitude), rad(b.Latitude)
	dLon := rad(b.Longitude - a.Longitude)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Offset moves a fix east/north by the given meters using a local flat
// approximation.
func Offset(f Fix, east, north float64) Fix {
	out := f
	out.Latitude += north / earthRadius * 180 / math.Pi
	out.Longitude += east / (earthRadius * math.Cos(rad(f.Latitude))) * 180 / math.Pi
	return out
}

// ENU projects fixes onto a local east/north plane (meters) centered on
// origin.
func ENU(origin Fix, fixes []Fix) (east, north []float64) {
	east = make([]float64, len(fixes))
	north = make([]float64, len(fixes))
	cosLat := math.Cos(rad(origin.Latitude))
	for i, f := range fixes {
		east[i] = rad(f.Longitude-origin.Longitude) * earthRadius * cosLat
		north[i] = rad(f.Latitude-origin.Latitude) * earthRadius
	}
	return east, north
}

// Circumradius returns the radius of the circle through three planar
// points, or +Inf when they are collinear.
func Circumradius(x1, y1, x2, y2, x3, y3 float64) float64 {
	a := math.Hypot(x2-x1, y2-y1)
	b := math.Hypot(x3-x2, y3-y2)
	c := math.Hypot(x1-x3, y1-y3)
	area2 := math.Abs((x2-x1)*(y3-y1) - (x3-x1)*(y2-y1))
	if area2 < 1e-9 {
		return math.Inf(1)
	}
	return a * b * c / (2 * area2)
}

// FixRadius is the circumradius through three fixes in meters.
func FixRadius(a, b, c Fix) float64 {
	e, n := ENU(b, []Fix{a, b, c})
	return Circumradius(e[0], n[0], e[1], n[1], e[2], n[2])
}

// Track is a time-ordered series of fixes.
type Track []Fix

// Sort orders the track by timestamp.
func (t Track) Sort() {
	sort.SliceStable(t, func(i, j int) bool { return t[i].Timestamp.Before(t[j].Timestamp) })
}

// Index returns the position of the last fix at or before ts, or -1.
func (t Track) Index(ts time.Time) int {
	i := sort.Search(len(t), func(i int) bool { return t[i].Timestamp.After(ts) })
	return i - 1
}

// SpeedAt returns the ground speed at ts, linearly interpolated between
// fixes. Fixes with zero reported speed fall back to the haversine speed
// between neighbours. ok is false outside the track.
func (t Track) SpeedAt(ts time.Time) (float64, bool) {
	i := t.Index(ts)
	if i < 0 || i >= len(t)-1 {
		if len(t) > 0 && i == len(t)-1 && ts.Equal(t[i].Timestamp) {
			return t.speed(i), true
		}
		return 0, false
	}
	a, b := t[i], t[i+1]
	span := b.Timestamp.Sub(a.Timestamp).Seconds()
	if span <= 0 {
		return t.speed(i), true
	}
	frac := ts.Sub(a.Timestamp).Seconds() / span
	return t.speed(i)*(1-frac) + t.speed(i+1)*frac, true
}

func (t Track) speed(i int) float64 {
	if t[i].Speed > 0 {
		return t[i].Speed
	}
	j, k := i, i+1
	if k >= len(t) {
		j, k = i-1, i
	}
	if j < 0 {
		return 0
	}
	dt := t[k].Timestamp.Sub(t[j].Timestamp).Seconds()
	if dt <= 0 {
		return 0
	}
	return Distance(t[j], t[k]) / dt
}

// Between returns the fixes with from <= ts < to.
func (t Track) Between(from, to time.Time) Track {
	var out Track
	for _, f := range t {
		if !f.Timestamp.Before(from) && f.Timestamp.Before(to) {
			out = append(out, f)
		}
	}
	return out
}

// Length is the summed haversine distance along the track.
func (t Track) Length() float64 {
	total := 0.0
	for i := 1; i < len(t); i++ {
		total += Distance(t[i-1], t[i])
	}
	return total
}
