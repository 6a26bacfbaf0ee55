package imu

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Meta describes a batch as sent by a device.
type Meta struct {
	DeviceID   string    `json:"device_id" yaml:"device_id"`
	SensorType string    `json:"sensor_type" yaml:"sensor_type"`
	SampleRate float64   `json:"sample_rate" yaml:"sample_rate"`
	TotalCount int       `json:"total_count" yaml:"total_count"`
	DataFields []string  `json:"data_fields,omitempty" yaml:"data_fields,omitempty"`
	AccelUnit  AccelUnit `json:"acc_unit,omitempty" yaml:"acc_unit,omitempty"`
	GyroUnit   GyroUnit  `json:"gyro_unit,omitempty" yaml:"gyro_unit,omitempty"`
}

// Batch is the ingestion wire format:
//
//	{"meta": {...}, "data": [[timestamp_ms, ax, ay, az, gx, gy, gz], ...]}
type Batch struct {
	Meta Meta        `json:"meta" yaml:"meta"`
	Data [][]float64 `json:"data" yaml:"data"`
}

// DefaultFields is the column layout devices use.
var DefaultFields = []string{"timestamp", "acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z"}

// DecodeBatch reads one JSON batch and validates its shape.
func DecodeBatch(r io.Reader) (Batch, error) {
	var b Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Batch{}, fmt.Errorf("imu: decode batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Validate checks the batch against its own metadata.
func (b Batch) Validate() error {
	if len(b.Data) == 0 {
		return ErrEmpty
	}
	if b.Meta.TotalCount != 0 && b.Meta.TotalCount != len(b.Data) {
		return fmt.Errorf("%w: total_count=%d rows=%d", ErrCount, b.Meta.TotalCount, len(b.Data))
	}
	if n := len(b.Meta.DataFields); n != 0 && n != len(b.Data[0]) {
		return fmt.Errorf("%w: data_fields lists %d columns, rows have %d", ErrColumns, n, len(b.Data[0]))
	}
	if b.Meta.SampleRate < 0 || math.IsNaN(b.Meta.SampleRate) {
		return fmt.Errorf("imu: invalid sample_rate %v", b.Meta.SampleRate)
	}
	return nil
}

// Units returns the batch units, defaulting to what devices send.
func (b Batch) Units() Units {
	u := DeviceUnits
	if b.Meta.AccelUnit != "" {
		u.Accel = b.Meta.AccelUnit
	}
	if b.Meta.GyroUnit != "" {
		u.Gyro = b.Meta.GyroUnit
	}
	return u
}

// Samples normalizes the batch into SI units.
func (b Batch) Samples(gravity float64) ([]Sample, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return Normalize(b.Data, b.Units(), gravity)
}

// NewBatch builds a device-units batch from rows already laid out as
// DefaultFields.
func NewBatch(deviceID string, sampleRate float64, rows [][]float64) Batch {
	return Batch{
		Meta: Meta{
			DeviceID:   deviceID,
			SensorType: "imu",
			SampleRate: sampleRate,
			TotalCount: len(rows),
			DataFields: DefaultFields,
		},
		Data: rows,
	}
}

// Row converts a normalized sample back to a device-units row.
func (s Sample) Row(gravity float64) []float64 {
	const r2d = 180.0 / math.Pi
	return []float64{
		float64(s.Timestamp.UnixMilli()),
		s.Acc.X / gravity, s.Acc.Y / gravity, s.Acc.Z / gravity,
		s.Gyro.X * r2d, s.Gyro.Y * r2d, s.Gyro.Z * r2d,
	}
}

// EncodeBatch converts SI samples into a device-units batch.
func EncodeBatch(deviceID string, sampleRate float64, samples []Sample, gravity float64) Batch {
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = s.Row(gravity)
	}
	return NewBatch(deviceID, sampleRate, rows)
}
