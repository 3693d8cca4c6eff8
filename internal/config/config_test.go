package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorlog_config.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# only comments\n\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BarometerSamplingPeriod != 1000 {
		t.Errorf("barometer period %d", cfg.BarometerSamplingPeriod)
	}
	if cfg.LocationSamplingPeriod != 0 {
		t.Errorf("location period %d", cfg.LocationSamplingPeriod)
	}
	if cfg.ReferencePressureMbar != 1013.25 {
		t.Errorf("reference pressure %v", cfg.ReferencePressureMbar)
	}
	if cfg.LogFileFor("barometer") != "Barometer.csv" || cfg.LogFileFor("location") != "GPS.csv" {
		t.Errorf("log files %q %q", cfg.LogFileFor("barometer"), cfg.LogFileFor("location"))
	}
	if cfg.SourceFor("barometer") != SourceBMP || cfg.SourceFor("location") != SourceNMEA {
		t.Errorf("sources %q %q", cfg.BarometerSource, cfg.LocationSource)
	}
	if cfg.SourceFor("light") != SourceNone {
		t.Errorf("light source %q", cfg.LightSource)
	}
}

func TestLoadValues(t *testing.T) {
	body := strings.Join([]string{
		"LOG_DIR = /data/logs",
		"LOG_WRITE_HEADER=true",
		"BAROMETER_SAMPLING_PERIOD=500",
		"LIGHT_SAMPLING_PERIOD=250",
		"REFERENCE_PRESSURE_MBAR=1020.5",
		"BAROMETER_SOURCE=MQTT",
		"LOCATION_SOURCE=mock",
		"MQTT_BROKER=tcp://localhost:1883",
		"TOPIC_BAROMETER=rig/baro",
		"DISPLAY_LEFT_I2C_ADDR=0x3C",
		"AUTOSTART_STREAMS=barometer, location",
		"WEB_SERVER_PORT=8080",
	}, "\n")
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogDir != "/data/logs" || !cfg.LogWriteHeader {
		t.Errorf("log settings %q %v", cfg.LogDir, cfg.LogWriteHeader)
	}
	if cfg.SamplingPeriodFor("barometer") != 500 || cfg.SamplingPeriodFor("light") != 250 {
		t.Errorf("periods %d %d", cfg.BarometerSamplingPeriod, cfg.LightSamplingPeriod)
	}
	if cfg.ReferencePressureMbar != 1020.5 {
		t.Errorf("reference %v", cfg.ReferencePressureMbar)
	}
	if cfg.BarometerSource != SourceMQTT || cfg.TopicFor("barometer") != "rig/baro" {
		t.Errorf("barometer source %q topic %q", cfg.BarometerSource, cfg.TopicBarometer)
	}
	if cfg.DisplayLeftI2CAddr != 0x3C {
		t.Errorf("display addr %#x", cfg.DisplayLeftI2CAddr)
	}
	if len(cfg.AutostartStreams) != 2 || cfg.AutostartStreams[1] != "location" {
		t.Errorf("autostart %q", cfg.AutostartStreams)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":         "FOO=bar",
		"missing equals":      "LOG_DIR",
		"bad period":          "BAROMETER_SAMPLING_PERIOD=fast",
		"negative period":     "LIGHT_SAMPLING_PERIOD=-5",
		"bad pressure":        "REFERENCE_PRESSURE_MBAR=0",
		"unknown source":      "BAROMETER_SOURCE=sonar",
		"nmea for barometer":  "BAROMETER_SOURCE=nmea",
		"bmp for location":    "LOCATION_SOURCE=bmp",
		"mqtt without broker": "LIGHT_SOURCE=mqtt",
		"unknown stream":      "AUTOSTART_STREAMS=barometer,sonar",
		"port out of range":   "WEB_SERVER_PORT=70000",
		"producer w/o broker": "PRODUCER_STREAMS=location",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LogDir == "" || cfg.GPSBaudRate != 9600 || cfg.BMPPollInterval != 200 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "sensorlog_config.txt"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WebServerPort != 8080 || len(cfg.AutostartStreams) != 2 || len(cfg.ProducerStreams) != 0 {
		t.Errorf("unexpected values: %+v", cfg)
	}
}
