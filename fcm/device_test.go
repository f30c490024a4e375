package fcm

import (
	"regexp"
	"testing"
)

func TestDefaultAndroidDevice(t *testing.T) {
	device := DefaultAndroidDevice()

	// Verify build fingerprint is non-empty and matches Android format
	if device.BuildFingerprint == "" {
		t.Fatal("BuildFingerprint should not be empty")
	}
	// Format: brand/product/device:version/build_id/build_number:user/release-keys
	fingerprintPattern := regexp.MustCompile(`^[^/]+/[^/]+/[^:]+:[0-9]+/[^/]+/[^:]+:(user|userdebug)/(release-keys|dev-keys)$`)
	if !fingerprintPattern.MatchString(device.BuildFingerprint) {
		t.Errorf("BuildFingerprint has invalid format: %s", device.BuildFingerprint)
	}

	// Verify SDK version is reasonable (Android 7+ = SDK 24+)
	if device.SDKVersion < 24 || device.SDKVersion > 40 {
		t.Errorf("SDKVersion should be between 24 and 40, got: %d", device.SDKVersion)
	}

	// Verify GMS version is non-zero
	if device.GMSVersion == 0 {
		t.Error("GMSVersion should not be zero")
	}

	// Verify device and model are non-empty
	if device.Device == "" {
		t.Error("Device should not be empty")
	}
	if device.Model == "" {
		t.Error("Model should not be empty")
	}

	// Verify Chrome version format (e.g., "120.0.6099.144")
	chromePattern := regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	if !chromePattern.MatchString(device.ChromeVersion) {
		t.Errorf("ChromeVersion has invalid format: %s", device.ChromeVersion)
	}
}

func TestConfigAppVersionDefault(t *testing.T) {
	if got := (Config{}).appVersion(); got != "1" {
		t.Errorf("appVersion() = %q, want %q", got, "1")
	}
	if got := (Config{AppVersion: "4021"}).appVersion(); got != "4021" {
		t.Errorf("appVersion() = %q, want %q", got, "4021")
	}
}

func TestWithSDKVersion(t *testing.T) {
	c := NewClient(t.TempDir(), Config{}, WithSDKVersion(34))
	if c.device.SDKVersion != 34 {
		t.Errorf("SDKVersion = %d, want 34", c.device.SDKVersion)
	}
	if c.device.Model != DefaultAndroidDevice().Model {
		t.Errorf("Model = %q, want default", c.device.Model)
	}

	c = NewClient(t.TempDir(), Config{}, WithSDKVersion(0))
	if c.device.SDKVersion != DefaultAndroidDevice().SDKVersion {
		t.Errorf("SDKVersion = %d, want default", c.device.SDKVersion)
	}
}

func TestWithDevice(t *testing.T) {
	custom := AndroidDeviceInfo{
		BuildFingerprint: "google/test/test:14/TEST/1:user/release-keys",
		SDKVersion:       34,
		Device:           "test_device",
		Model:            "Test Model",
	}
	c := NewClient(t.TempDir(), Config{}, WithDevice(custom))
	if c.device != custom {
		t.Errorf("device = %+v, want %+v", c.device, custom)
	}
}
