package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# nothing but a comment\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" || cfg.TopicIMUBatch != "ski/imu/batch" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DisplayI2CAddr != 0x3C {
		t.Fatalf("display addr=%#x want=0x3c", cfg.DisplayI2CAddr)
	}
	if got := cfg.IMUSampleRate(); got != 100 {
		t.Fatalf("sample rate=%v want=100", got)
	}
}

func TestParseOverrides(t *testing.T) {
	in := strings.Join([]string{
		"MQTT_BROKER=tcp://10.0.0.5:1883",
		"CALIB_PURITY_THRESHOLD=0.8",
		"CALIB_STATIC_WINDOW=50",
		"ANALYSIS_ONSET_YAW_RATE=0.4",
		"ANALYSIS_BARO_FS=2",
		"ANALYSIS_IMU_FS=200",
		"IMU_GYRO_RANGE=3",
		"LOG_LEVEL=DEBUG",
	}, "\n")
	cfg, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MQTTBroker != "tcp://10.0.0.5:1883" || cfg.IMUGyroRange != 3 || cfg.LogLevel != "debug" {
		t.Fatalf("cfg=%+v", cfg)
	}
	c := cfg.Calibration()
	if c.RotationPurityThreshold != 0.8 || c.StaticWindowSize != 50 || c.RotationWindowSize != 200 {
		t.Fatalf("calibration=%+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("calibration config invalid: %v", err)
	}
	a := cfg.Analysis()
	if a.OnsetYawRate != 0.4 || a.CutoffHz != 0.5 || a.BaroFS != 2 || a.IMUFS != 200 || a.GPSFS != 1 {
		t.Fatalf("analysis=%+v", a)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("analysis config invalid: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "NOT_A_KEY=1",
		"bad int":      "IMU_BATCH_SIZE=many",
		"range":        "IMU_ACCEL_RANGE=7",
		"purity":       "CALIB_PURITY_THRESHOLD=1.5",
		"log level":    "LOG_LEVEL=loud",
		"small batch":  "IMU_BATCH_SIZE=100",
		"port":         "WEB_SERVER_PORT=70000",
		"display addr": "DISPLAY_I2C_ADDR=zz",
		"display 3d":   "DISPLAY_I2C_ADDR=0x3D",
		"empty broker": "MQTT_BROKER=",
		"bool":         "CALIB_VERBOSE=maybe",
	}
	for name, in := range cases {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Fatalf("%s: expected error for %q", name, in)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ski_config.txt")
	if err := os.WriteFile(path, []byte("DEVICE_ID=board-7\nGPS_BAUD_RATE=38400\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SKI_GPS_BAUD_RATE", "115200")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeviceID != "board-7" {
		t.Fatalf("device=%q", cfg.DeviceID)
	}
	if cfg.GPSBaudRate != 115200 {
		t.Fatalf("baud=%d want env override 115200", cfg.GPSBaudRate)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDump(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := cfg.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	for _, want := range []string{"mqtt_broker: tcp://localhost:1883", "topic_turns: ski/turns"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
