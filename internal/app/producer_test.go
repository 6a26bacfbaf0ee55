package app

import (
	"strings"
	"testing"

	"github.com/relabs-tech/ski_compute/internal/gps"
)

func TestBatcher(t *testing.T) {
	b := newBatcher("board-1", 100, 3)
	row := []float64{0, 0, 0, 1, 0, 0, 0}
	for i := 0; i < 2; i++ {
		if _, full := b.Add(row); full {
			t.Fatalf("batch full after %d rows", i+1)
		}
	}
	batch, full := b.Add(row)
	if !full {
		t.Fatalf("batch not full after 3 rows")
	}
	if err := batch.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if batch.Meta.DeviceID != "board-1" || batch.Meta.TotalCount != 3 || batch.Meta.SampleRate != 100 {
		t.Fatalf("meta=%+v", batch.Meta)
	}
	if _, full := b.Add(row); full {
		t.Fatalf("batcher did not reset")
	}
}

func TestStreamFixes(t *testing.T) {
	log := strings.Join([]string{
		"$GPGGA,123519.00,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*69",
		"$GPRMC,123519.00,A,4807.038,N,01131.000,E,022.4,084.4,301025,003.1,W*4E",
		"$GPRMC,bad*00",
		"$GPRMC,123521.00,V,0000.000,N,00000.000,E,000.0,000.0,301025,003.1,W*5C",
	}, "\r\n")

	var fixes []gps.Fix
	err := streamFixes(strings.NewReader(log), "board-1", func(f gps.Fix) error {
		fixes = append(fixes, f)
		return nil
	})
	if err != nil {
		t.Fatalf("streamFixes: %v", err)
	}
	if len(fixes) != 1 {
		t.Fatalf("fixes=%d want=1", len(fixes))
	}
	if fixes[0].SourceID != "board-1" || fixes[0].Altitude != 545.4 {
		t.Fatalf("fix=%+v", fixes[0])
	}
}
