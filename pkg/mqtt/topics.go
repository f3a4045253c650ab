package mqtt

import (
	"fmt"
	"strings"
)

// CommandTopic returns the topic a display receives actions on
// Pattern: automation/command/wordclock/{display}
func CommandTopic(display string) string {
	return fmt.Sprintf("automation/command/wordclock/%s", display)
}

// ResponseTopic returns the topic action responses are published to
// Pattern: automation/response/wordclock/{display}
func ResponseTopic(display string) string {
	return fmt.Sprintf("automation/response/wordclock/%s", display)
}

// ConfigTopic returns the retained topic holding the active display settings
// Pattern: automation/config/wordclock/{display}
func ConfigTopic(display string) string {
	return fmt.Sprintf("automation/config/wordclock/%s", display)
}

// ConfigSetTopic returns the topic a display accepts settings updates on
// Pattern: automation/config/wordclock/{display}/set
func ConfigSetTopic(display string) string {
	return ConfigTopic(display) + "/set"
}

// ContextTopic returns the topic render context is published to
// Pattern: automation/context/wordclock/{display}
func ContextTopic(display string) string {
	return fmt.Sprintf("automation/context/wordclock/%s", display)
}

// PixelCommandTopic returns the topic a pixel controller receives frames on
// Pattern: automation/command/pixels/{controller}
func PixelCommandTopic(controller string) string {
	return fmt.Sprintf("automation/command/pixels/%s", controller)
}

// DisplayFromTopic extracts the display segment from a wordclock topic
// automation/{kind}/wordclock/{display}[/...] -> display
func DisplayFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "automation" || parts[2] != "wordclock" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
