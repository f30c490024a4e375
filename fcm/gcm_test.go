package fcm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slush-dev/pushbridge/internal/checkinpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	SenderID:   "123456789012",
	AppPackage: "com.example.pushdemo",
	CertSHA1:   "38918a453d07199354f8b19af05ec6562ced5788",
	AppVersion: "42",
}

func checkinResponse(t *testing.T, androidID, securityToken uint64) []byte {
	t.Helper()
	resp := &checkinpb.AndroidCheckinResponse{
		StatsOk:       true,
		AndroidID:     androidID,
		SecurityToken: securityToken,
	}
	data, err := resp.Marshal()
	require.NoError(t, err)
	return data
}

func TestGCMCheckin(t *testing.T) {
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))

		var err error
		receivedBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(checkinResponse(t, 123456789, 987654321))
	}))
	defer srv.Close()

	origURL := gcmCheckinURL
	gcmCheckinURL = srv.URL
	defer func() { gcmCheckinURL = origURL }()

	device := DefaultAndroidDevice()
	androidID, securityToken, err := gcmCheckin(context.Background(), srv.Client(), 0, 0, device)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), androidID)
	assert.Equal(t, uint64(987654321), securityToken)

	var req checkinpb.AndroidCheckinRequest
	require.NoError(t, req.Unmarshal(receivedBody))
	assert.Equal(t, checkinpb.DeviceType_DEVICE_ANDROID_OS, req.GetCheckin().GetType())
	assert.Equal(t, int32(3), req.Version)
	assert.Equal(t, int32(0), req.Fragment)
	// First checkin carries no credentials.
	assert.Zero(t, req.ID)
	assert.Zero(t, req.SecurityToken)

	build := req.GetCheckin().GetBuild()
	require.NotNil(t, build, "checkin must include AndroidBuildProto")
	assert.Equal(t, device.BuildFingerprint, build.Fingerprint)
	assert.Equal(t, device.Hardware, build.Hardware)
	assert.Equal(t, device.Brand, build.Brand)
	assert.Equal(t, device.Device, build.Device)
	assert.Equal(t, device.Model, build.Model)
	assert.Equal(t, device.Manufacturer, build.Manufacturer)
	assert.Equal(t, device.Product, build.Product)
	assert.Equal(t, int32(device.SDKVersion), build.SdkVersion)
	assert.Equal(t, int32(device.GMSVersion), build.PackageVersionCode)
	assert.Equal(t, device.BuildTime, build.Time)
	assert.Equal(t, "android-google", build.ClientID)

	assert.Equal(t, "en_US", req.Locale)
	assert.Equal(t, "America/New_York", req.TimeZone)
}

func TestGCMCheckin_Recheckin(t *testing.T) {
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		receivedBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Write(checkinResponse(t, 111, 222))
	}))
	defer srv.Close()

	origURL := gcmCheckinURL
	gcmCheckinURL = srv.URL
	defer func() { gcmCheckinURL = origURL }()

	androidID, securityToken, err := gcmCheckin(context.Background(), srv.Client(), 111, 222, DefaultAndroidDevice())
	require.NoError(t, err)
	assert.Equal(t, uint64(111), androidID)
	assert.Equal(t, uint64(222), securityToken)

	var req checkinpb.AndroidCheckinRequest
	require.NoError(t, req.Unmarshal(receivedBody))
	assert.Equal(t, int64(111), req.ID)
	assert.Equal(t, uint64(222), req.SecurityToken)
}

func TestGCMCheckin_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	origURL := gcmCheckinURL
	gcmCheckinURL = srv.URL
	defer func() { gcmCheckinURL = origURL }()

	_, _, err := gcmCheckin(context.Background(), srv.Client(), 0, 0, DefaultAndroidDevice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGCMCheckin_MissingAndroidID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(checkinResponse(t, 0, 0))
	}))
	defer srv.Close()

	origURL := gcmCheckinURL
	gcmCheckinURL = srv.URL
	defer func() { gcmCheckinURL = origURL }()

	_, _, err := gcmCheckin(context.Background(), srv.Client(), 0, 0, DefaultAndroidDevice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no android id")
}

func TestGCMRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "AidLogin 123:456", r.Header.Get("Authorization"))
		assert.Equal(t, testConfig.AppPackage, r.Header.Get("app"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Android-GCM/1.5")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, testConfig.AppPackage, r.PostForm.Get("app"))
		assert.Equal(t, testConfig.SenderID, r.PostForm.Get("sender"))
		assert.Equal(t, "123", r.PostForm.Get("device"))
		assert.Equal(t, testConfig.CertSHA1, r.PostForm.Get("cert"))
		assert.Equal(t, "42", r.PostForm.Get("app_ver"))
		assert.Equal(t, "GCM", r.PostForm.Get("X-scope"))
		assert.NotEmpty(t, r.PostForm.Get("gcm_ver"))
		assert.NotEmpty(t, r.PostForm.Get("X-osv"))
		assert.NotEmpty(t, r.PostForm.Get("X-gmsv"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("X-cliv"), "iid-"))
		assert.Regexp(t, "^[0-9a-f]{11}$", r.PostForm.Get("X-appid"))

		fmt.Fprint(w, "token=test-fcm-token-xyz \n")
	}))
	defer srv.Close()

	origURL := gcmRegisterURL
	gcmRegisterURL = srv.URL
	defer func() { gcmRegisterURL = origURL }()

	token, err := gcmRegister(context.Background(), srv.Client(), 123, 456, DefaultAndroidDevice(), testConfig)
	require.NoError(t, err)
	assert.Equal(t, "test-fcm-token-xyz", token)
}

func TestGCMRegister_NoCert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, hasCert := r.PostForm["cert"]
		assert.False(t, hasCert)
		assert.Equal(t, "1", r.PostForm.Get("app_ver"))
		fmt.Fprint(w, "token=t")
	}))
	defer srv.Close()

	origURL := gcmRegisterURL
	gcmRegisterURL = srv.URL
	defer func() { gcmRegisterURL = origURL }()

	cfg := Config{SenderID: "1", AppPackage: "com.example.pushdemo"}
	token, err := gcmRegister(context.Background(), srv.Client(), 1, 2, DefaultAndroidDevice(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "t", token)
}

func TestGCMRegister_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Error=PHONE_REGISTRATION_ERROR")
	}))
	defer srv.Close()

	origURL := gcmRegisterURL
	gcmRegisterURL = srv.URL
	defer func() { gcmRegisterURL = origURL }()

	_, err := gcmRegister(context.Background(), srv.Client(), 123, 456, DefaultAndroidDevice(), testConfig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHONE_REGISTRATION_ERROR")
}

func TestGCMRegister_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	origURL := gcmRegisterURL
	gcmRegisterURL = srv.URL
	defer func() { gcmRegisterURL = origURL }()

	_, err := gcmRegister(context.Background(), srv.Client(), 123, 456, DefaultAndroidDevice(), testConfig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
