package fcm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/slush-dev/pushbridge/internal/checkinpb"
)

// Endpoints; tests point them at httptest servers.
var (
	gcmCheckinURL  = "https://android.clients.google.com/checkin"
	gcmRegisterURL = "https://android.clients.google.com/c2dm/register3"
)

// gcmCredentials is the device identity issued by checkin.
type gcmCredentials struct {
	AndroidID     uint64 `json:"androidId"`
	SecurityToken uint64 `json:"securityToken"`
}

// gcmCheckin posts an AndroidCheckinRequest and returns the issued identity.
// Passing a previous identity re-checks in as that device.
func gcmCheckin(ctx context.Context, httpClient *http.Client, androidID, securityToken uint64, device AndroidDeviceInfo) (uint64, uint64, error) {
	clientID := "android-google"
	checkin := &checkinpb.AndroidCheckinProto{
		Build: &checkinpb.AndroidBuildProto{
			Fingerprint:        device.BuildFingerprint,
			Hardware:           device.Hardware,
			Brand:              device.Brand,
			Radio:              device.Radio,
			Bootloader:         device.Bootloader,
			ClientID:           clientID,
			Time:               device.BuildTime,
			PackageVersionCode: int32(device.GMSVersion),
			Device:             device.Device,
			SdkVersion:         int32(device.SDKVersion),
			Model:              device.Model,
			Manufacturer:       device.Manufacturer,
			Product:            device.Product,
		},
		Type: checkinpb.DeviceType_DEVICE_ANDROID_OS,
	}

	req := &checkinpb.AndroidCheckinRequest{
		Checkin:  checkin,
		Version:  3,
		Locale:   "en_US",
		TimeZone: "America/New_York",
	}

	if androidID != 0 {
		req.ID = int64(androidID)
		req.SecurityToken = securityToken
	}

	body, err := req.Marshal()
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gcmCheckinURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("gcm checkin: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var checkinResp checkinpb.AndroidCheckinResponse
	if err := checkinResp.Unmarshal(respBody); err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: unmarshal response: %w", err)
	}
	if checkinResp.AndroidID == 0 {
		return 0, 0, fmt.Errorf("gcm checkin: response carries no android id")
	}

	return checkinResp.AndroidID, checkinResp.SecurityToken, nil
}

// generateInstanceID returns 11 random hex characters, the shape of an
// Android instance id.
func generateInstanceID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	return hex.EncodeToString(b)[:11], nil
}

// gcmRegister calls register3 as the app in cfg and returns the token.
func gcmRegister(ctx context.Context, httpClient *http.Client, androidID, securityToken uint64, device AndroidDeviceInfo, cfg Config) (string, error) {
	instanceID, err := generateInstanceID()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"app":    {cfg.AppPackage},
		"sender": {cfg.SenderID},
		"device": {strconv.FormatUint(androidID, 10)},
		"cert":   {cfg.CertSHA1},

		"app_ver": {cfg.appVersion()},
		"gcm_ver": {strconv.Itoa(device.GMSVersion)},
		"X-scope": {"GCM"},
		"X-appid": {instanceID},
		"X-osv":   {strconv.Itoa(device.SDKVersion)},
		"X-gmsv":  {strconv.Itoa(device.GMSVersion)},
		"X-cliv":  {"iid-" + device.ChromeVersion},
	}
	if cfg.CertSHA1 == "" {
		form.Del("cert")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gcmRegisterURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gcm register: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", fmt.Sprintf("AidLogin %d:%d", androidID, securityToken))
	httpReq.Header.Set("User-Agent", fmt.Sprintf("Android-GCM/1.5 (%s %s)", device.Device, device.Model))
	httpReq.Header.Set("app", cfg.AppPackage)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gcm register: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gcm register: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gcm register: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	body := strings.TrimSpace(string(respBody))
	if token, found := strings.CutPrefix(body, "token="); found {
		return strings.TrimSpace(token), nil
	}
	if reason, found := strings.CutPrefix(body, "Error="); found {
		return "", fmt.Errorf("gcm register: %s", reason)
	}

	return "", fmt.Errorf("gcm register: unexpected response: %s", body)
}
