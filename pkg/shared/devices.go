package shared

// Device is a closed set of emulation presets. Unknown values fail
// ParseDevice; the set is fixed so resolution is an exhaustive switch
// rather than a lookup table.
type Device string

const (
	DeviceNone          Device = ""
	DeviceIPhone13      Device = "iphone13"
	DeviceIPhone13Pro   Device = "iphone13_pro"
	DeviceIPadPro       Device = "ipad_pro"
	DeviceSamsungGalaxy Device = "samsung_galaxy"
	DevicePixel5        Device = "pixel_5"
	DeviceDesktop1080p  Device = "desktop_1080p"
	DeviceDesktop4K     Device = "desktop_4k"
)

// DevicePreset is the viewport and identity a device emulates.
type DevicePreset struct {
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"user_agent"`
	Mobile    bool     `json:"mobile"`
}

// Devices lists every preset name, in a stable order.
func Devices() []Device {
	return []Device{
		DeviceIPhone13,
		DeviceIPhone13Pro,
		DeviceIPadPro,
		DeviceSamsungGalaxy,
		DevicePixel5,
		DeviceDesktop1080p,
		DeviceDesktop4K,
	}
}

// ParseDevice validates a user-supplied device name. Empty means no
// device emulation.
func ParseDevice(s string) (Device, bool) {
	d := Device(s)
	if d == DeviceNone {
		return DeviceNone, true
	}
	_, ok := d.Preset()
	return d, ok
}

// Preset resolves the device to its emulation parameters. The second
// return is false for DeviceNone and unknown values.
func (d Device) Preset() (DevicePreset, bool) {
	switch d {
	case DeviceIPhone13:
		return DevicePreset{Viewport{390, 844}, "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15", true}, true
	case DeviceIPhone13Pro:
		return DevicePreset{Viewport{428, 926}, "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15", true}, true
	case DeviceIPadPro:
		return DevicePreset{Viewport{1024, 1366}, "Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X) AppleWebKit/605.1.15", true}, true
	case DeviceSamsungGalaxy:
		return DevicePreset{Viewport{360, 740}, "Mozilla/5.0 (Linux; Android 11; SM-G991B) AppleWebKit/537.36", true}, true
	case DevicePixel5:
		return DevicePreset{Viewport{393, 851}, "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36", true}, true
	case DeviceDesktop1080p:
		return DevicePreset{Viewport{1920, 1080}, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", false}, true
	case DeviceDesktop4K:
		return DevicePreset{Viewport{3840, 2160}, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", false}, true
	default:
		return DevicePreset{}, false
	}
}
