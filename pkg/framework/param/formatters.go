package param

import (
	"fmt"
	"strconv"
	"strings"
)

// Common parameter formatters and parsers

// DecibelFormatter formats dB values. Anything at or below the -100 dB
// meter floor reads as silence.
func DecibelFormatter(db float64) string {
	if db <= -100 {
		return "-∞ dB"
	}
	return fmt.Sprintf("%.1f dB", db)
}

// SignedDecibelFormatter formats a gain offset with an explicit sign
func SignedDecibelFormatter(db float64) string {
	return fmt.Sprintf("%+.1f dB", db)
}

// DecibelParser parses dB strings
func DecibelParser(str string) (float64, error) {
	if strings.Contains(str, "∞") || strings.Contains(str, "inf") {
		return -100.0, nil
	}
	str = strings.TrimSuffix(strings.TrimSpace(str), "dB")
	str = strings.TrimSuffix(strings.TrimSpace(str), "db")
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// TimeFormatter formats time values with appropriate units
func TimeFormatter(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0f ms", ms)
	}
	return fmt.Sprintf("%.2f s", ms/1000)
}

// TimeParser parses time strings into milliseconds
func TimeParser(str string) (float64, error) {
	str = strings.TrimSpace(str)

	// Handle seconds
	if strings.HasSuffix(str, "s") && !strings.HasSuffix(str, "ms") {
		numStr := strings.TrimSuffix(str, "s")
		val, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
		if err != nil {
			return 0, err
		}
		return val * 1000, nil // Convert to ms
	}

	// Handle milliseconds (default)
	str = strings.TrimSuffix(str, "ms")
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// SamplesFormatter formats a sample count
func SamplesFormatter(samples float64) string {
	return fmt.Sprintf("%.0f smp", samples)
}

// SamplesParser parses sample count strings
func SamplesParser(str string) (float64, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimSuffix(str, "samples")
	str = strings.TrimSuffix(str, "smp")
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// OnOffFormatter formats boolean as On/Off
func OnOffFormatter(value float64) string {
	if value > 0.5 {
		return "On"
	}
	return "Off"
}

// OnOffParser parses On/Off strings
func OnOffParser(str string) (float64, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	switch str {
	case "on", "yes", "true", "1":
		return 1, nil
	case "off", "no", "false", "0":
		return 0, nil
	default:
		return 0, fmt.Errorf("expected 'on' or 'off', got: %s", str)
	}
}
