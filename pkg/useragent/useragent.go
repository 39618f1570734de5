// Package useragent classifies raw User-Agent strings with ordered,
// case-insensitive substring checks. First match wins at every step, so
// Chromium-based browsers (Edge, Opera) report as Chrome.
package useragent

import "strings"

const Unknown = "Unknown"

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

type rule struct {
	needles []string
	label   string
}

var deviceRules = []rule{
	{[]string{"mobile", "android"}, DeviceMobile},
	{[]string{"tablet", "ipad"}, DeviceTablet},
	{[]string{"mozilla", "chrome", "safari"}, DeviceDesktop},
}

var browserRules = []rule{
	{[]string{"chrome"}, "Chrome"},
	{[]string{"firefox"}, "Firefox"},
	{[]string{"safari"}, "Safari"},
	{[]string{"edge"}, "Edge"},
	{[]string{"opera"}, "Opera"},
}

var osRules = []rule{
	{[]string{"windows"}, "Windows"},
	{[]string{"mac"}, "macOS"},
	{[]string{"linux"}, "Linux"},
	{[]string{"android"}, "Android"},
	{[]string{"ios"}, "iOS"},
}

// Info is derived once per session
type Info struct {
	DeviceType string `json:"device_type"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
}

func Parse(ua string) Info {
	lower := strings.ToLower(ua)
	return Info{
		DeviceType: match(lower, deviceRules, DeviceUnknown),
		Browser:    match(lower, browserRules, Unknown),
		OS:         match(lower, osRules, Unknown),
	}
}

func DeviceType(ua string) string {
	return match(strings.ToLower(ua), deviceRules, DeviceUnknown)
}

func match(lower string, rules []rule, fallback string) string {
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(lower, n) {
				return r.label
			}
		}
	}
	return fallback
}
