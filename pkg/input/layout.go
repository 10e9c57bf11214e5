package input

import (
	"fmt"
	"strings"
)

// TriggerRange names the native range reported for the boost trigger.
type TriggerRange string

const (
	// TriggerSigned triggers rest at -1 and read +1 fully pressed.
	TriggerSigned TriggerRange = "signed"
	// TriggerUnit triggers already report [0, 1].
	TriggerUnit TriggerRange = "unit"
)

// Layout maps a device's axis and button indices onto controls.
// Match holds case-insensitive name fragments; a layout without any is the fallback.
type Layout struct {
	Name         string       `toml:"name" yaml:"name" json:"name"`
	Match        []string     `toml:"match" yaml:"match" json:"match,omitempty"`
	DriveAxis    int          `toml:"drive_axis" yaml:"drive_axis" json:"drive_axis"`
	InvertDrive  bool         `toml:"invert_drive" yaml:"invert_drive" json:"invert_drive"`
	SteerAxis    int          `toml:"steer_axis" yaml:"steer_axis" json:"steer_axis"`
	InvertSteer  bool         `toml:"invert_steer" yaml:"invert_steer" json:"invert_steer"`
	TriggerAxis  int          `toml:"trigger_axis" yaml:"trigger_axis" json:"trigger_axis"`
	TriggerRange TriggerRange `toml:"trigger_range" yaml:"trigger_range" json:"trigger_range"`
	StopButton   int          `toml:"stop_button" yaml:"stop_button" json:"stop_button"`
}

// DefaultLayouts covers DualSense pads and the common XInput-style mapping.
// Left stick Y drives, right stick X steers, right trigger boosts, right bumper stops.
func DefaultLayouts() []Layout {
	return []Layout{
		{
			Name:         "dualsense",
			Match:        []string{"dualsense", "dual sense", "ps5"},
			DriveAxis:    1,
			InvertDrive:  true,
			SteerAxis:    2,
			TriggerAxis:  5,
			TriggerRange: TriggerSigned,
			StopButton:   5,
		},
		{
			Name:         "generic",
			DriveAxis:    1,
			InvertDrive:  true,
			SteerAxis:    3,
			TriggerAxis:  5,
			TriggerRange: TriggerSigned,
			StopButton:   5,
		},
	}
}

// SelectLayout picks the first layout whose patterns occur in deviceName,
// falling back to the first layout with no patterns, then to the first layout.
func SelectLayout(deviceName string, layouts []Layout) (Layout, error) {
	if len(layouts) == 0 {
		return Layout{}, fmt.Errorf("no controller layouts configured")
	}
	name := strings.ToLower(deviceName)
	var fallback *Layout
	for i := range layouts {
		l := &layouts[i]
		if len(l.Match) == 0 {
			if fallback == nil {
				fallback = l
			}
			continue
		}
		for _, pattern := range l.Match {
			p := strings.ToLower(strings.TrimSpace(pattern))
			if p != "" && strings.Contains(name, p) {
				return *l, nil
			}
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return layouts[0], nil
}

// LayoutByName finds a layout by its configured name.
func LayoutByName(name string, layouts []Layout) (Layout, bool) {
	for _, l := range layouts {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Layout{}, false
}

// Validate checks indices and the trigger range.
func (l Layout) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layout has empty name")
	}
	for field, idx := range map[string]int{
		"drive_axis":   l.DriveAxis,
		"steer_axis":   l.SteerAxis,
		"trigger_axis": l.TriggerAxis,
	} {
		if idx < 0 {
			return fmt.Errorf("layout %s has invalid %s %d", l.Name, field, idx)
		}
	}
	if l.StopButton < 0 || l.StopButton >= 32 {
		return fmt.Errorf("layout %s has invalid stop_button %d", l.Name, l.StopButton)
	}
	switch l.TriggerRange {
	case TriggerSigned, TriggerUnit:
	default:
		return fmt.Errorf("layout %s has unknown trigger_range %q", l.Name, l.TriggerRange)
	}
	return nil
}
