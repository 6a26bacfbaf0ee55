package sensors

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ski_compute/internal/env"
)

// EnvSource reads one BMP280 over SPI.
type EnvSource struct {
	name string
	port spi.PortCloser
	dev  *bmxx80.Dev
}

// NewEnvSource opens the barometer on spiDevice.
func NewEnvSource(name, spiDevice string) (*EnvSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(spiDevice)
	if err != nil {
		return nil, fmt.Errorf("%s BMP SPI open: %w", name, err)
	}

	dev, err := bmxx80.NewSPI(port, &bmxx80.DefaultOpts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%s BMP init: %w", name, err)
	}
	return &EnvSource{name: name, port: port, dev: dev}, nil
}

// Read returns temperature and pressure.
func (s *EnvSource) Read() (env.Sample, error) {
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return env.Sample{}, fmt.Errorf("%s BMP sense: %w", s.name, err)
	}
	return env.Sample{
		Timestamp:   time.Now(),
		Source:      s.name,
		Temperature: e.Temperature.Celsius(),
		Pressure:    float64(e.Pressure) / float64(physic.Pascal),
	}, nil
}

func (s *EnvSource) Close() error {
	if err := s.dev.Halt(); err != nil {
		s.port.Close()
		return err
	}
	return s.port.Close()
}
