package redis

import "fmt"

// Key construction helpers

// EnvironmentalSensorKey returns the key for environmental sensor data (sorted set)
// Pattern: sensor:environmental:{location}
func EnvironmentalSensorKey(location string) string {
	return fmt.Sprintf("sensor:environmental:%s", location)
}

// DisplaySettingsKey returns the key holding a display's settings document (string)
// Pattern: config:wordclock:{display}
func DisplaySettingsKey(display string) string {
	return fmt.Sprintf("config:wordclock:%s", display)
}
