package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kilobyte uint64 = 1024
	megabyte        = 1024 * kilobyte
	gigabyte        = 1024 * megabyte
	terabyte        = 1024 * gigabyte
)

// ParseSize parses a human-readable byte size such as "512MB", "2GB" or
// "1.5GB". A bare number is taken as bytes.
func ParseSize(sizeStr string) (uint64, error) {
	s := strings.TrimSpace(strings.ToUpper(sizeStr))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := uint64(1)
	switch {
	case strings.HasSuffix(s, "TB"):
		multiplier = terabyte
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "GB"):
		multiplier = gigabyte
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = megabyte
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = kilobyte
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	s = strings.TrimSpace(s)
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", sizeStr)
	}

	return uint64(value * float64(multiplier)), nil
}

// FormatSize renders bytes as the largest unit that divides evenly,
// so guard-adjusted values round-trip through ParseSize exactly.
func FormatSize(bytes uint64) string {
	switch {
	case bytes >= gigabyte && bytes%gigabyte == 0:
		return fmt.Sprintf("%dGB", bytes/gigabyte)
	case bytes >= megabyte && bytes%megabyte == 0:
		return fmt.Sprintf("%dMB", bytes/megabyte)
	case bytes >= kilobyte && bytes%kilobyte == 0:
		return fmt.Sprintf("%dKB", bytes/kilobyte)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
