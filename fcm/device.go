package fcm

// AndroidDeviceInfo is the device identity presented during GCM checkin and
// registration.
type AndroidDeviceInfo struct {
	// BuildFingerprint follows brand/product/device:version/build_id/build_number:type/tags.
	BuildFingerprint string
	SDKVersion       int
	// GMSVersion is the Google Play Services version code.
	GMSVersion    int
	Device        string
	Model         string
	ChromeVersion string
	Hardware      string
	Brand         string
	Manufacturer  string
	Product       string
	Bootloader    string
	Radio         string
	// BuildTime is Build.TIME in seconds since the epoch.
	BuildTime int64
}

// DefaultAndroidDevice returns a Pixel 7 on Android 13 (TQ3A.230805.001).
func DefaultAndroidDevice() AndroidDeviceInfo {
	return AndroidDeviceInfo{
		BuildFingerprint: "google/panther/panther:13/TQ3A.230805.001/10316531:user/release-keys",
		SDKVersion:       33,
		GMSVersion:       241516037,
		Device:           "panther",
		Model:            "Pixel 7",
		Hardware:         "panther",
		Brand:            "google",
		Manufacturer:     "Google",
		Product:          "panther",
		Bootloader:       "slider-1.2-9819352",
		Radio:            "g5300g-230511-230925-B-10484716",
		BuildTime:        1691193600,
		ChromeVersion:    "120.0.6099.144",
	}
}

// WithDevice overrides the device identity used for checkin and registration.
func WithDevice(device AndroidDeviceInfo) Option {
	return func(c *Client) {
		c.device = device
	}
}

// WithSDKVersion reports a different Android SDK level while keeping the
// rest of the default device identity.
func WithSDKVersion(sdk int) Option {
	return func(c *Client) {
		if sdk > 0 {
			c.device.SDKVersion = sdk
		}
	}
}
