// internal/config/plc_config.go
//
// PLCFileConfig loads the per-PLC [PLC]/[MONITOR] INI file from spec §6,
// replacing original_source/gateway/plc/client.go's load_config (Python
// configparser) with gopkg.in/ini.v1.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// PLCFileConfig is one PLC's connection and liveness-probe address, loaded
// from an INI file.
type PLCFileConfig struct {
	// [PLC]
	IP   string
	Rack int
	Slot int
	Port int

	// [MONITOR] -- liveness/heartbeat probe address (spec §4.2)
	CheckInterval time.Duration
	MonitorDB     int
	ByteOffset    int
	BitIndex      int
}

// LoadPLCFileConfig parses path as an INI file with [PLC] and [MONITOR]
// sections. A missing file or a missing required key is a ConfigError
// (spec §7): fatal at startup.
func LoadPLCFileConfig(path string) (*PLCFileConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: falha ao carregar %s: %w", path, err)
	}

	plcSection, err := file.GetSection("PLC")
	if err != nil {
		return nil, fmt.Errorf("config: seção [PLC] ausente em %s: %w", path, err)
	}
	monitorSection, err := file.GetSection("MONITOR")
	if err != nil {
		return nil, fmt.Errorf("config: seção [MONITOR] ausente em %s: %w", path, err)
	}

	ip := plcSection.Key("ip").String()
	if ip == "" {
		return nil, fmt.Errorf("config: [PLC] ip ausente em %s", path)
	}

	checkIntervalSeconds := monitorSection.Key("check_interval").MustFloat64(1.0)

	cfg := &PLCFileConfig{
		IP:            ip,
		Rack:          plcSection.Key("rack").MustInt(0),
		Slot:          plcSection.Key("slot").MustInt(1),
		Port:          plcSection.Key("port").MustInt(102),
		CheckInterval: time.Duration(checkIntervalSeconds * float64(time.Second)),
		MonitorDB:     monitorSection.Key("db_number").MustInt(),
		ByteOffset:    monitorSection.Key("byte_offset").MustInt(),
		BitIndex:      monitorSection.Key("bit_index").MustInt(),
	}
	return cfg, nil
}
