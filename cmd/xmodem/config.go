package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	serialDev    string
	baud         int
	serialReadTO time.Duration
	mode         string
	file         string
	packetSize   int
	maxRetrans   int
	logFormat    string
	logLevel     string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("port", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	mode := flag.String("mode", "send", "Transfer direction: send|recv")
	file := flag.String("file", "", "File to send (mode=send) or write (mode=recv)")
	packetSize := flag.Int("packet-size", 128, "Transmit packet size: 128|1024 (ignored for mode=recv)")
	maxRetrans := flag.Int("max-retrans", 25, "Retry/retransmit budget")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.mode = *mode
	cfg.file = *file
	cfg.packetSize = *packetSize
	cfg.maxRetrans = *maxRetrans
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if *showVersion {
		return cfg, true
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or files – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.mode {
	case "send", "recv":
	default:
		return fmt.Errorf("invalid mode: %s (want send|recv)", c.mode)
	}
	if c.file == "" {
		return errors.New("-file is required")
	}
	switch c.packetSize {
	case 128, 1024:
	default:
		return fmt.Errorf("invalid packet-size: %d (want 128|1024)", c.packetSize)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return errors.New("serial-read-timeout must be > 0")
	}
	if c.maxRetrans <= 0 {
		return fmt.Errorf("max-retrans must be > 0 (got %d)", c.maxRetrans)
	}
	return nil
}

// applyEnvOverrides maps XMODEM_* environment variables to config fields
// unless a corresponding flag was explicitly set. Flag wins over env.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["port"]; !ok {
		if v, ok := get("XMODEM_PORT"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("XMODEM_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid XMODEM_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("XMODEM_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid XMODEM_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["mode"]; !ok {
		if v, ok := get("XMODEM_MODE"); ok && v != "" {
			c.mode = v
		}
	}
	if _, ok := set["file"]; !ok {
		if v, ok := get("XMODEM_FILE"); ok && v != "" {
			c.file = v
		}
	}
	if _, ok := set["packet-size"]; !ok {
		if v, ok := get("XMODEM_PACKET_SIZE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && (n == 128 || n == 1024) {
				c.packetSize = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid XMODEM_PACKET_SIZE: %w", err)
			}
		}
	}
	if _, ok := set["max-retrans"]; !ok {
		if v, ok := get("XMODEM_MAX_RETRANS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.maxRetrans = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid XMODEM_MAX_RETRANS: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("XMODEM_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("XMODEM_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	return firstErr
}
