package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/sensor_logger/internal/streams"
)

// Source kinds accepted by the *_SOURCE keys.
const (
	SourceNone = "none"
	SourceMQTT = "mqtt"
	SourceNMEA = "nmea"
	SourceBMP  = "bmp"
	SourceMock = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Logs
	LogDir           string
	BarometerLogFile string
	LocationLogFile  string
	LightLogFile     string
	ActivityLogFile  string
	LogWriteHeader   bool
	LogMinFreeMB     int

	// Sampling periods in milliseconds; 0 logs every reading.
	BarometerSamplingPeriod int
	LocationSamplingPeriod  int
	LightSamplingPeriod     int

	// Sea level pressure used for barometric altitude.
	ReferencePressureMbar float64

	// Where each stream's raw readings come from: none, mqtt, nmea, bmp, mock
	BarometerSource string
	LocationSource  string
	LightSource     string
	ActivitySource  string

	// MQTT
	MQTTBroker   string
	MQTTClientID string

	// Topics
	TopicBarometer string
	TopicLocation  string
	TopicLight     string
	TopicActivity  string

	// BMP Hardware
	BMPSPIDevice    string
	BMPPollInterval int // milliseconds

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Mock source tick, milliseconds
	MockInterval int

	// Web Server; 0 disables it
	WebServerPort int

	// Display
	DisplayEnabled        bool
	DisplayLeftI2CAddr    uint16
	DisplayRightI2CAddr   uint16
	DisplayUpdateInterval int // milliseconds

	// Streams started at launch by the logger, and streams published by the producer.
	AutostartStreams []string
	ProducerStreams  []string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex; write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Logs
	case "LOG_DIR":
		c.LogDir = value
	case "BAROMETER_LOG_FILE":
		c.BarometerLogFile = value
	case "LOCATION_LOG_FILE":
		c.LocationLogFile = value
	case "LIGHT_LOG_FILE":
		c.LightLogFile = value
	case "ACTIVITY_LOG_FILE":
		c.ActivityLogFile = value
	case "LOG_WRITE_HEADER":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_WRITE_HEADER %q: %w", value, err)
		}
		c.LogWriteHeader = b
	case "LOG_MIN_FREE_MB":
		mb, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_MIN_FREE_MB %q: %w", value, err)
		}
		if mb < 0 {
			return fmt.Errorf("LOG_MIN_FREE_MB must be >= 0, got %d", mb)
		}
		c.LogMinFreeMB = mb

	// Sampling
	case "BAROMETER_SAMPLING_PERIOD":
		ms, err := parsePeriod(key, value)
		if err != nil {
			return err
		}
		c.BarometerSamplingPeriod = ms
	case "LOCATION_SAMPLING_PERIOD":
		ms, err := parsePeriod(key, value)
		if err != nil {
			return err
		}
		c.LocationSamplingPeriod = ms
	case "LIGHT_SAMPLING_PERIOD":
		ms, err := parsePeriod(key, value)
		if err != nil {
			return err
		}
		c.LightSamplingPeriod = ms
	case "REFERENCE_PRESSURE_MBAR":
		p, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid REFERENCE_PRESSURE_MBAR %q: %w", value, err)
		}
		if !(p > 0) {
			return fmt.Errorf("REFERENCE_PRESSURE_MBAR must be > 0, got %v", p)
		}
		c.ReferencePressureMbar = p

	// Sources
	case "BAROMETER_SOURCE":
		c.BarometerSource = strings.ToLower(value)
	case "LOCATION_SOURCE":
		c.LocationSource = strings.ToLower(value)
	case "LIGHT_SOURCE":
		c.LightSource = strings.ToLower(value)
	case "ACTIVITY_SOURCE":
		c.ActivitySource = strings.ToLower(value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value

	// Topics
	case "TOPIC_BAROMETER":
		c.TopicBarometer = value
	case "TOPIC_LOCATION":
		c.TopicLocation = value
	case "TOPIC_LIGHT":
		c.TopicLight = value
	case "TOPIC_ACTIVITY":
		c.TopicActivity = value

	// BMP Hardware
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "BMP_POLL_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BMP_POLL_INTERVAL %q: %w", value, err)
		}
		c.BMPPollInterval = interval

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	case "MOCK_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOCK_INTERVAL %q: %w", value, err)
		}
		c.MockInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = b
	case "DISPLAY_LEFT_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_LEFT_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayLeftI2CAddr = uint16(addr)
	case "DISPLAY_RIGHT_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_RIGHT_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayRightI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "AUTOSTART_STREAMS":
		c.AutostartStreams = splitList(value)
	case "PRODUCER_STREAMS":
		c.ProducerStreams = splitList(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parsePeriod(key, value string) (int, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", key, ms)
	}
	return ms, nil
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// applyDefaults fills in every value the file left unset.
func (c *Config) applyDefaults() {
	if c.LogDir == "" {
		c.LogDir = "./BaroGps"
	}
	if c.BarometerLogFile == "" {
		c.BarometerLogFile = "Barometer.csv"
	}
	if c.LocationLogFile == "" {
		c.LocationLogFile = "GPS.csv"
	}
	if c.LightLogFile == "" {
		c.LightLogFile = "Light.csv"
	}
	if c.ActivityLogFile == "" {
		c.ActivityLogFile = "Activities.csv"
	}
	if c.BarometerSamplingPeriod == 0 {
		c.BarometerSamplingPeriod = 1000 // 1 Hz
	}
	if c.ReferencePressureMbar == 0 {
		c.ReferencePressureMbar = 1013.25
	}
	if c.BarometerSource == "" {
		c.BarometerSource = SourceBMP
	}
	if c.LocationSource == "" {
		c.LocationSource = SourceNMEA
	}
	if c.LightSource == "" {
		c.LightSource = SourceNone
	}
	if c.ActivitySource == "" {
		c.ActivitySource = SourceNone
	}
	if c.TopicBarometer == "" {
		c.TopicBarometer = "sensorlog/barometer"
	}
	if c.TopicLocation == "" {
		c.TopicLocation = "sensorlog/location"
	}
	if c.TopicLight == "" {
		c.TopicLight = "sensorlog/light"
	}
	if c.TopicActivity == "" {
		c.TopicActivity = "sensorlog/activity"
	}
	if c.BMPSPIDevice == "" {
		c.BMPSPIDevice = "/dev/spidev0.0"
	}
	if c.BMPPollInterval == 0 {
		c.BMPPollInterval = 200
	}
	if c.GPSSerialPort == "" {
		c.GPSSerialPort = "/dev/serial0"
	}
	if c.GPSBaudRate == 0 {
		c.GPSBaudRate = 9600
	}
	if c.MockInterval == 0 {
		c.MockInterval = 200
	}
	if c.DisplayLeftI2CAddr == 0 {
		c.DisplayLeftI2CAddr = 0x3C
	}
	if c.DisplayRightI2CAddr == 0 {
		c.DisplayRightI2CAddr = 0x3D
	}
	if c.DisplayUpdateInterval == 0 {
		c.DisplayUpdateInterval = 500
	}
}

// validate checks that the configured values fit together.
func (c *Config) validate() error {
	sources := map[string]string{
		"BAROMETER_SOURCE": c.BarometerSource,
		"LOCATION_SOURCE":  c.LocationSource,
		"LIGHT_SOURCE":     c.LightSource,
		"ACTIVITY_SOURCE":  c.ActivitySource,
	}
	usesMQTT := false
	for key, src := range sources {
		switch src {
		case SourceNone, SourceMQTT, SourceMock:
		case SourceNMEA:
			if key != "LOCATION_SOURCE" {
				return fmt.Errorf("%s: nmea only provides location", key)
			}
		case SourceBMP:
			if key != "BAROMETER_SOURCE" {
				return fmt.Errorf("%s: bmp only provides barometer", key)
			}
		default:
			return fmt.Errorf("%s must be one of none, mqtt, nmea, bmp, mock, got %q", key, src)
		}
		if src == SourceMQTT {
			usesMQTT = true
		}
	}
	if (usesMQTT || len(c.ProducerStreams) > 0) && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.BMPPollInterval < 0 {
		return fmt.Errorf("BMP_POLL_INTERVAL must be > 0")
	}
	if c.MockInterval < 0 {
		return fmt.Errorf("MOCK_INTERVAL must be > 0")
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	for _, s := range append(slices.Clone(c.AutostartStreams), c.ProducerStreams...) {
		if !slices.Contains(streams.All, s) {
			return fmt.Errorf("unknown stream %q (known: %s)", s, strings.Join(streams.All, ", "))
		}
	}
	return nil
}

// SourceFor returns the configured source kind of a stream.
func (c *Config) SourceFor(stream string) string {
	switch stream {
	case streams.Barometer:
		return c.BarometerSource
	case streams.Location:
		return c.LocationSource
	case streams.Light:
		return c.LightSource
	case streams.Activity:
		return c.ActivitySource
	}
	return SourceNone
}

// TopicFor returns the MQTT topic of a stream.
func (c *Config) TopicFor(stream string) string {
	switch stream {
	case streams.Barometer:
		return c.TopicBarometer
	case streams.Location:
		return c.TopicLocation
	case streams.Light:
		return c.TopicLight
	case streams.Activity:
		return c.TopicActivity
	}
	return ""
}

// LogFileFor returns the log file name of a stream, relative to LogDir.
func (c *Config) LogFileFor(stream string) string {
	switch stream {
	case streams.Barometer:
		return c.BarometerLogFile
	case streams.Location:
		return c.LocationLogFile
	case streams.Light:
		return c.LightLogFile
	case streams.Activity:
		return c.ActivityLogFile
	}
	return stream + ".csv"
}

// SamplingPeriodFor returns the sampling period of a stream in milliseconds.
func (c *Config) SamplingPeriodFor(stream string) int {
	switch stream {
	case streams.Barometer:
		return c.BarometerSamplingPeriod
	case streams.Location:
		return c.LocationSamplingPeriod
	case streams.Light:
		return c.LightSamplingPeriod
	}
	return 0
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
