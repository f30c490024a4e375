// Package checkinpb contains the Android GCM checkin request and response
// messages. Field numbers follow checkin.proto / android_checkin.proto.
package checkinpb

import (
	"github.com/slush-dev/pushbridge/internal/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

// DeviceType identifies the checkin client.
type DeviceType int32

const (
	DeviceType_DEVICE_ANDROID_OS     DeviceType = 1
	DeviceType_DEVICE_IOS_OS         DeviceType = 2
	DeviceType_DEVICE_CHROME_BROWSER DeviceType = 3
)

// AndroidBuildProto describes the device build.
type AndroidBuildProto struct {
	Fingerprint        string
	Hardware           string
	Brand              string
	Radio              string
	Bootloader         string
	ClientID           string
	Time               int64
	PackageVersionCode int32
	Device             string
	SdkVersion         int32
	Model              string
	Manufacturer       string
	Product            string
	OtaInstalled       bool
}

func (m *AndroidBuildProto) Marshal() []byte {
	var b []byte
	b = wire.AppendOptString(b, 1, m.Fingerprint)
	b = wire.AppendOptString(b, 2, m.Hardware)
	b = wire.AppendOptString(b, 3, m.Brand)
	b = wire.AppendOptString(b, 4, m.Radio)
	b = wire.AppendOptString(b, 5, m.Bootloader)
	b = wire.AppendOptString(b, 6, m.ClientID)
	b = wire.AppendVarint(b, 7, m.Time)
	b = wire.AppendVarint(b, 8, int64(m.PackageVersionCode))
	b = wire.AppendOptString(b, 9, m.Device)
	b = wire.AppendVarint(b, 10, int64(m.SdkVersion))
	b = wire.AppendOptString(b, 11, m.Model)
	b = wire.AppendOptString(b, 12, m.Manufacturer)
	b = wire.AppendOptString(b, 13, m.Product)
	b = wire.AppendBool(b, 14, m.OtaInstalled)
	return b
}

func (m *AndroidBuildProto) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.Fingerprint)
		case 2:
			return wire.String(typ, b, &m.Hardware)
		case 3:
			return wire.String(typ, b, &m.Brand)
		case 4:
			return wire.String(typ, b, &m.Radio)
		case 5:
			return wire.String(typ, b, &m.Bootloader)
		case 6:
			return wire.String(typ, b, &m.ClientID)
		case 7:
			return wire.Int64(typ, b, &m.Time)
		case 8:
			return wire.Int32(typ, b, &m.PackageVersionCode)
		case 9:
			return wire.String(typ, b, &m.Device)
		case 10:
			return wire.Int32(typ, b, &m.SdkVersion)
		case 11:
			return wire.String(typ, b, &m.Model)
		case 12:
			return wire.String(typ, b, &m.Manufacturer)
		case 13:
			return wire.String(typ, b, &m.Product)
		case 14:
			return wire.Bool(typ, b, &m.OtaInstalled)
		}
		return 0
	})
}

// AndroidCheckinProto is the device section of a checkin request.
type AndroidCheckinProto struct {
	Build *AndroidBuildProto
	Type  DeviceType
}

func (m *AndroidCheckinProto) GetBuild() *AndroidBuildProto {
	if m == nil {
		return nil
	}
	return m.Build
}

func (m *AndroidCheckinProto) GetType() DeviceType {
	if m == nil {
		return 0
	}
	return m.Type
}

func (m *AndroidCheckinProto) Marshal() []byte {
	var b []byte
	if m.Build != nil {
		b = wire.AppendMessage(b, 1, m.Build.Marshal())
	}
	return wire.AppendVarint(b, 12, int64(m.Type))
}

func (m *AndroidCheckinProto) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.Message(typ, b, func(v []byte) error {
				m.Build = &AndroidBuildProto{}
				return m.Build.Unmarshal(v)
			})
		case 12:
			var v int32
			n := wire.Int32(typ, b, &v)
			m.Type = DeviceType(v)
			return n
		}
		return 0
	})
}

// AndroidCheckinRequest is POSTed to the checkin endpoint. ID and
// SecurityToken are only sent on a re-checkin (ID != 0).
type AndroidCheckinRequest struct {
	ID               int64
	Locale           string
	Checkin          *AndroidCheckinProto
	TimeZone         string
	SecurityToken    uint64
	Version          int32
	Fragment         int32
	UserSerialNumber int32
}

func (m *AndroidCheckinRequest) GetCheckin() *AndroidCheckinProto {
	if m == nil {
		return nil
	}
	return m.Checkin
}

func (m *AndroidCheckinRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.ID != 0 {
		b = wire.AppendVarint(b, 2, m.ID)
	}
	if m.Checkin != nil {
		b = wire.AppendMessage(b, 4, m.Checkin.Marshal())
	}
	b = wire.AppendOptString(b, 6, m.Locale)
	b = wire.AppendOptString(b, 12, m.TimeZone)
	if m.ID != 0 {
		b = wire.AppendFixed64(b, 13, m.SecurityToken)
	}
	b = wire.AppendVarint(b, 14, int64(m.Version))
	b = wire.AppendVarint(b, 20, int64(m.Fragment))
	b = wire.AppendVarint(b, 22, int64(m.UserSerialNumber))
	return b, nil
}

func (m *AndroidCheckinRequest) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 2:
			return wire.Int64(typ, b, &m.ID)
		case 4:
			return wire.Message(typ, b, func(v []byte) error {
				m.Checkin = &AndroidCheckinProto{}
				return m.Checkin.Unmarshal(v)
			})
		case 6:
			return wire.String(typ, b, &m.Locale)
		case 12:
			return wire.String(typ, b, &m.TimeZone)
		case 13:
			return wire.Fixed64(typ, b, &m.SecurityToken)
		case 14:
			return wire.Int32(typ, b, &m.Version)
		case 20:
			return wire.Int32(typ, b, &m.Fragment)
		case 22:
			return wire.Int32(typ, b, &m.UserSerialNumber)
		}
		return 0
	})
}

// AndroidCheckinResponse carries the device credentials.
type AndroidCheckinResponse struct {
	StatsOk       bool
	TimeMsec      int64
	AndroidID     uint64
	SecurityToken uint64
}

func (m *AndroidCheckinResponse) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendBool(b, 1, m.StatsOk)
	b = wire.AppendOptVarint(b, 3, m.TimeMsec)
	b = wire.AppendFixed64(b, 7, m.AndroidID)
	b = wire.AppendFixed64(b, 8, m.SecurityToken)
	return b, nil
}

func (m *AndroidCheckinResponse) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.Bool(typ, b, &m.StatsOk)
		case 3:
			return wire.Int64(typ, b, &m.TimeMsec)
		case 7:
			return wire.Fixed64(typ, b, &m.AndroidID)
		case 8:
			return wire.Fixed64(typ, b, &m.SecurityToken)
		}
		return 0
	})
}
