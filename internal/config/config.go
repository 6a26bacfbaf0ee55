package config

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/ski_compute/internal/analysis"
	"github.com/relabs-tech/ski_compute/internal/calibration"
)

// DefaultPath is the KEY=VALUE file looked up when no --config is given.
const DefaultPath = "ski_config.txt"

// SSD1306Addr is the only I2C address the upstream ssd1306 driver uses.
const SSD1306Addr = 0x3C

// EnvPrefix prefixes environment overrides, e.g. SKI_MQTT_BROKER.
const EnvPrefix = "SKI"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string `yaml:"mqtt_broker"`
	MQTTClientIDWorker   string `yaml:"mqtt_client_id_worker"`
	MQTTClientIDProducer string `yaml:"mqtt_client_id_producer"`
	MQTTClientIDGPS      string `yaml:"mqtt_client_id_gps"`
	MQTTClientIDWeb      string `yaml:"mqtt_client_id_web"`
	MQTTClientIDDisplay  string `yaml:"mqtt_client_id_display"`

	// Topics
	TopicIMUBatch          string `yaml:"topic_imu_batch"`
	TopicBaro              string `yaml:"topic_baro"`
	TopicGPS               string `yaml:"topic_gps"`
	TopicCalibrationResult string `yaml:"topic_calibration_result"`
	TopicSession           string `yaml:"topic_session"`
	TopicTurns             string `yaml:"topic_turns"`

	DeviceID string `yaml:"device_id"`

	// IMU Hardware
	IMUSPIDevice string `yaml:"imu_spi_device"`
	IMUCSPin     string `yaml:"imu_cs_pin"`

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte `yaml:"imu_accel_range"`
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte `yaml:"imu_gyro_range"`

	IMUSampleInterval int `yaml:"imu_sample_interval"` // milliseconds
	IMUBatchSize      int `yaml:"imu_batch_size"`

	// Barometer
	BMPSPIDevice      string `yaml:"bmp_spi_device"`
	BMPSampleInterval int    `yaml:"bmp_sample_interval"` // milliseconds

	// GPS
	GPSSerialPort string `yaml:"gps_serial_port"`
	GPSBaudRate   int    `yaml:"gps_baud_rate"`

	// Web Server
	WebServerPort int `yaml:"web_server_port"`

	// Display
	DisplayI2CAddr        uint16 `yaml:"display_i2c_addr"`
	DisplayUpdateInterval int    `yaml:"display_update_interval"` // milliseconds

	// Calibration
	CalibStaticWindow      int     `yaml:"calib_static_window"`
	CalibRotationWindow    int     `yaml:"calib_rotation_window"`
	CalibPurityThreshold   float64 `yaml:"calib_purity_threshold"`
	CalibSampleRate        float64 `yaml:"calib_sample_rate"`
	CalibVerbose           bool    `yaml:"calib_verbose"`
	CalibMinNetRotationDeg float64 `yaml:"calib_min_net_rotation_deg"`

	// Session analysis
	AnalysisIMUFS           float64 `yaml:"analysis_imu_fs"`
	AnalysisBaroFS          float64 `yaml:"analysis_baro_fs"`
	AnalysisGPSFS           float64 `yaml:"analysis_gps_fs"`
	AnalysisCutoffHz        float64 `yaml:"analysis_cutoff_hz"`
	AnalysisOnsetYawRate    float64 `yaml:"analysis_onset_yaw_rate"`
	AnalysisMinTurnDuration float64 `yaml:"analysis_min_turn_duration"`
	AnalysisCarvingRollDeg  float64 `yaml:"analysis_carving_roll_deg"`

	LogLevel string `yaml:"log_level"`
}

// defaults are applied before the file and the environment.
var defaults = map[string]string{
	"MQTT_BROKER":             "tcp://localhost:1883",
	"MQTT_CLIENT_ID_WORKER":   "ski-worker",
	"MQTT_CLIENT_ID_PRODUCER": "ski-imu-producer",
	"MQTT_CLIENT_ID_GPS":      "ski-gps-producer",
	"MQTT_CLIENT_ID_WEB":      "ski-web",
	"MQTT_CLIENT_ID_DISPLAY":  "ski-display",

	"TOPIC_IMU_BATCH":          "ski/imu/batch",
	"TOPIC_BARO":               "ski/baro",
	"TOPIC_GPS":                "ski/gps",
	"TOPIC_CALIBRATION_RESULT": "ski/calibration/result",
	"TOPIC_SESSION":            "ski/session",
	"TOPIC_TURNS":              "ski/turns",

	"DEVICE_ID": "board-0",

	"IMU_SPI_DEVICE":      "/dev/spidev0.0",
	"IMU_CS_PIN":          "GPIO8",
	"IMU_ACCEL_RANGE":     "2",
	"IMU_GYRO_RANGE":      "2",
	"IMU_SAMPLE_INTERVAL": "10",
	"IMU_BATCH_SIZE":      "500",

	"BMP_SPI_DEVICE":      "/dev/spidev0.1",
	"BMP_SAMPLE_INTERVAL": "1000",

	"GPS_SERIAL_PORT": "/dev/serial0",
	"GPS_BAUD_RATE":   "9600",

	"WEB_SERVER_PORT": "8080",

	"DISPLAY_I2C_ADDR":        "0x3C",
	"DISPLAY_UPDATE_INTERVAL": "1000",

	"CALIB_STATIC_WINDOW":        "100",
	"CALIB_ROTATION_WINDOW":      "200",
	"CALIB_PURITY_THRESHOLD":     "0.7",
	"CALIB_SAMPLE_RATE":          "100",
	"CALIB_VERBOSE":              "false",
	"CALIB_MIN_NET_ROTATION_DEG": "15",

	"ANALYSIS_IMU_FS":            "100",
	"ANALYSIS_BARO_FS":           "1",
	"ANALYSIS_GPS_FS":            "1",
	"ANALYSIS_CUTOFF_HZ":         "0.5",
	"ANALYSIS_ONSET_YAW_RATE":    "0.3",
	"ANALYSIS_MIN_TURN_DURATION": "0.5",
	"ANALYSIS_CARVING_ROLL_DEG":  "10",

	"LOG_LEVEL": "info",
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("env")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads a KEY=VALUE configuration file. An empty path uses defaults
// and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return fromViper(v)
}

// Parse reads KEY=VALUE content from r.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	keys := v.AllKeys()
	sort.Strings(keys)
	cfg := &Config{}
	for _, k := range keys {
		key := strings.ToUpper(k)
		if err := cfg.setValue(key, strings.TrimSpace(v.GetString(k))); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseByte(key, value string, max int) (byte, error) {
	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < 0 || val > max {
		return 0, fmt.Errorf("%s must be 0-%d, got %d", key, max, val)
	}
	return byte(val), nil
}

func parseInt(key, value string) (int, error) {
	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return val, nil
}

func parseFloat(key, value string) (float64, error) {
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return val, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_WORKER":
		c.MQTTClientIDWorker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_IMU_BATCH":
		c.TopicIMUBatch = value
	case "TOPIC_BARO":
		c.TopicBaro = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_CALIBRATION_RESULT":
		c.TopicCalibrationResult = value
	case "TOPIC_SESSION":
		c.TopicSession = value
	case "TOPIC_TURNS":
		c.TopicTurns = value

	case "DEVICE_ID":
		c.DeviceID = value

	// IMU
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseByte(key, value, 3)
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseByte(key, value, 3)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value)
	case "IMU_BATCH_SIZE":
		c.IMUBatchSize, err = parseInt(key, value)

	// Barometer
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "BMP_SAMPLE_INTERVAL":
		c.BMPSampleInterval, err = parseInt(key, value)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value)

	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		if addr != SSD1306Addr {
			return fmt.Errorf("DISPLAY_I2C_ADDR %#x not supported, the ssd1306 driver only talks to %#x", addr, SSD1306Addr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	// Calibration
	case "CALIB_STATIC_WINDOW":
		c.CalibStaticWindow, err = parseInt(key, value)
	case "CALIB_ROTATION_WINDOW":
		c.CalibRotationWindow, err = parseInt(key, value)
	case "CALIB_PURITY_THRESHOLD":
		c.CalibPurityThreshold, err = parseFloat(key, value)
		if err == nil && (c.CalibPurityThreshold < 0 || c.CalibPurityThreshold > 1) {
			return fmt.Errorf("CALIB_PURITY_THRESHOLD must be 0-1, got %v", c.CalibPurityThreshold)
		}
	case "CALIB_SAMPLE_RATE":
		c.CalibSampleRate, err = parseFloat(key, value)
	case "CALIB_VERBOSE":
		c.CalibVerbose, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid CALIB_VERBOSE %q: %w", value, err)
		}
	case "CALIB_MIN_NET_ROTATION_DEG":
		c.CalibMinNetRotationDeg, err = parseFloat(key, value)

	// Analysis
	case "ANALYSIS_IMU_FS":
		c.AnalysisIMUFS, err = parseFloat(key, value)
	case "ANALYSIS_BARO_FS":
		c.AnalysisBaroFS, err = parseFloat(key, value)
	case "ANALYSIS_GPS_FS":
		c.AnalysisGPSFS, err = parseFloat(key, value)
	case "ANALYSIS_CUTOFF_HZ":
		c.AnalysisCutoffHz, err = parseFloat(key, value)
	case "ANALYSIS_ONSET_YAW_RATE":
		c.AnalysisOnsetYawRate, err = parseFloat(key, value)
	case "ANALYSIS_MIN_TURN_DURATION":
		c.AnalysisMinTurnDuration, err = parseFloat(key, value)
	case "ANALYSIS_CARVING_ROLL_DEG":
		c.AnalysisCarvingRollDeg, err = parseFloat(key, value)

	case "LOG_LEVEL":
		switch strings.ToLower(value) {
		case "trace", "debug", "info", "warn", "warning", "error":
			c.LogLevel = strings.ToLower(value)
		default:
			return fmt.Errorf("invalid LOG_LEVEL %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0")
	}
	if c.IMUBatchSize < c.CalibStaticWindow+c.CalibRotationWindow {
		return fmt.Errorf("IMU_BATCH_SIZE %d cannot hold a calibration (%d static + %d rotation samples)",
			c.IMUBatchSize, c.CalibStaticWindow, c.CalibRotationWindow)
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be > 0")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	return nil
}

// Calibration builds the calibration parameters.
func (c *Config) Calibration() calibration.Config {
	cfg := calibration.DefaultConfig()
	cfg.StaticWindowSize = c.CalibStaticWindow
	cfg.RotationWindowSize = c.CalibRotationWindow
	cfg.RotationPurityThreshold = c.CalibPurityThreshold
	cfg.SampleRate = c.CalibSampleRate
	cfg.MinNetRotationDeg = c.CalibMinNetRotationDeg
	cfg.Verbose = c.CalibVerbose
	return cfg
}

// Analysis builds the session analysis parameters.
func (c *Config) Analysis() analysis.Config {
	cfg := analysis.DefaultConfig()
	cfg.CutoffHz = c.AnalysisCutoffHz
	cfg.OnsetYawRate = c.AnalysisOnsetYawRate
	cfg.MinTurnDuration = c.AnalysisMinTurnDuration
	cfg.CarvingRollDeg = c.AnalysisCarvingRollDeg
	cfg.IMUFS = c.AnalysisIMUFS
	cfg.BaroFS = c.AnalysisBaroFS
	cfg.GPSFS = c.AnalysisGPSFS
	cfg.Verbose = c.CalibVerbose
	return cfg
}

// IMUSampleRate is the capture rate in Hz.
func (c *Config) IMUSampleRate() float64 {
	return 1000 / float64(c.IMUSampleInterval)
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
