package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ski_compute/internal/analysis"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/store"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
	lineChars     = displayWidth / 7 // basicfont.Face7x13
)

// DisplayState is what the OLED shows: the latest calibration record and
// the latest session report.
type DisplayState struct {
	mu sync.RWMutex

	calibration *store.Record
	report      *SessionReport
}

func (d *DisplayState) setCalibration(rec store.Record) {
	d.mu.Lock()
	d.calibration = &rec
	d.mu.Unlock()
}

func (d *DisplayState) setReport(r SessionReport) {
	d.mu.Lock()
	d.report = &r
	d.mu.Unlock()
}

// Lines renders the state as up to four text lines.
func (d *DisplayState) Lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.calibration == nil && d.report == nil {
		return []string{"ski_compute", "Waiting..."}
	}

	var lines []string
	if rec := d.calibration; rec != nil {
		res := rec.Result
		switch {
		case res == nil:
			lines = append(lines, "CAL "+string(rec.Status))
		case res.Success:
			lines = append(lines, fmt.Sprintf("CAL OK P=%.2f", res.Purity))
			if a := res.InstallationAngles; a != nil {
				lines = append(lines, fmt.Sprintf("R%4.0f P%4.0f Y%4.0f", a[0], a[1], a[2]))
			}
		default:
			lines = append(lines, "CAL FAIL", string(res.FailureReason))
		}
	}
	if r := d.report; r != nil {
		lines = append(lines, fmt.Sprintf("Turns: %d", r.TurnCount))
		if last := lastTurn(r.Metrics); last != nil {
			lines = append(lines, fmt.Sprintf("Edge %.0f %s", *last.EdgeAngle, *last.TurnDirection))
		}
	}
	for i, l := range lines {
		if len(l) > lineChars {
			lines[i] = l[:lineChars]
		}
	}
	if len(lines) > displayHeight/lineHeight {
		lines = lines[:displayHeight/lineHeight]
	}
	return lines
}

func lastTurn(metrics []analysis.Metric) *analysis.Metric {
	for i := len(metrics) - 1; i >= 0; i-- {
		m := metrics[i]
		if m.TurnDetected && m.EdgeAngle != nil && m.TurnDirection != nil {
			return &metrics[i]
		}
	}
	return nil
}

// renderFrame draws text lines into a 1-bit SSD1306 frame.
func renderFrame(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay mirrors calibration results and turn reports on the OLED.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Infof("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	state := &DisplayState{}
	if err := dev.Draw(dev.Bounds(), renderFrame(state.Lines()), image.Point{}); err != nil {
		log.Warnf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.TopicCalibrationResult+"/#", func(payload []byte) {
		var rec store.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			log.Warnf("display: calibration unmarshal error: %v", err)
			return
		}
		state.setCalibration(rec)
	}); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicTurns+"/#", func(payload []byte) {
		var r SessionReport
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Warnf("display: turns unmarshal error: %v", err)
			return
		}
		state.setReport(r)
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Infof("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return dev.Halt()
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), renderFrame(state.Lines()), image.Point{}); err != nil {
				log.Warnf("display: error updating display: %v", err)
			}
		}
	}
}
