// Package mcspb contains the subset of Google's MCS (Mobile Connection Server)
// protocol messages used by the fcm listener. Field numbers follow mcs.proto.
package mcspb

import (
	"github.com/slush-dev/pushbridge/internal/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every MCS stanza.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

// LoginRequest_AuthService selects how the login is authenticated.
type LoginRequest_AuthService int32

// LoginRequest_ANDROID_ID authenticates with androidId + securityToken.
const LoginRequest_ANDROID_ID LoginRequest_AuthService = 2

// HeartbeatPing is sent by either side to keep the stream alive.
type HeartbeatPing struct {
	StreamID             int32
	LastStreamIDReceived int32
	Status               int64
}

func (m *HeartbeatPing) Marshal() ([]byte, error) {
	return appendHeartbeat(nil, m.StreamID, m.LastStreamIDReceived, m.Status), nil
}

func (m *HeartbeatPing) Unmarshal(b []byte) error {
	return unmarshalHeartbeat(b, &m.StreamID, &m.LastStreamIDReceived, &m.Status)
}

// HeartbeatAck answers a HeartbeatPing.
type HeartbeatAck struct {
	StreamID             int32
	LastStreamIDReceived int32
	Status               int64
}

func (m *HeartbeatAck) Marshal() ([]byte, error) {
	return appendHeartbeat(nil, m.StreamID, m.LastStreamIDReceived, m.Status), nil
}

func (m *HeartbeatAck) Unmarshal(b []byte) error {
	return unmarshalHeartbeat(b, &m.StreamID, &m.LastStreamIDReceived, &m.Status)
}

func appendHeartbeat(b []byte, streamID, lastReceived int32, status int64) []byte {
	b = wire.AppendOptVarint(b, 1, int64(streamID))
	b = wire.AppendOptVarint(b, 2, int64(lastReceived))
	return wire.AppendOptVarint(b, 3, status)
}

func unmarshalHeartbeat(b []byte, streamID, lastReceived *int32, status *int64) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.Int32(typ, b, streamID)
		case 2:
			return wire.Int32(typ, b, lastReceived)
		case 3:
			return wire.Int64(typ, b, status)
		}
		return 0
	})
}

// Setting is a name/value pair carried in login messages.
type Setting struct {
	Name  string
	Value string
}

func (m *Setting) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, m.Name)
	b = wire.AppendString(b, 2, m.Value)
	return b, nil
}

func (m *Setting) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.Name)
		case 2:
			return wire.String(typ, b, &m.Value)
		}
		return 0
	})
}

// LoginRequest opens an MCS session.
type LoginRequest struct {
	ID                   string
	Domain               string
	User                 string
	Resource             string
	AuthToken            string
	DeviceID             string
	LastRmqID            int64
	Setting              []*Setting
	ReceivedPersistentID []string
	AdaptiveHeartbeat    bool
	UseRmq2              bool
	AccountID            int64
	AuthService          LoginRequest_AuthService
	NetworkType          int32
}

func (m *LoginRequest) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, m.ID)
	b = wire.AppendString(b, 2, m.Domain)
	b = wire.AppendString(b, 3, m.User)
	b = wire.AppendString(b, 4, m.Resource)
	b = wire.AppendString(b, 5, m.AuthToken)
	b = wire.AppendOptString(b, 6, m.DeviceID)
	b = wire.AppendVarint(b, 7, m.LastRmqID)
	for _, s := range m.Setting {
		sb, err := s.Marshal()
		if err != nil {
			return nil, err
		}
		b = wire.AppendMessage(b, 8, sb)
	}
	for _, id := range m.ReceivedPersistentID {
		b = wire.AppendString(b, 10, id)
	}
	b = wire.AppendBool(b, 12, m.AdaptiveHeartbeat)
	b = wire.AppendBool(b, 14, m.UseRmq2)
	b = wire.AppendVarint(b, 15, m.AccountID)
	b = wire.AppendVarint(b, 16, int64(m.AuthService))
	b = wire.AppendVarint(b, 17, int64(m.NetworkType))
	return b, nil
}

func (m *LoginRequest) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.ID)
		case 2:
			return wire.String(typ, b, &m.Domain)
		case 3:
			return wire.String(typ, b, &m.User)
		case 4:
			return wire.String(typ, b, &m.Resource)
		case 5:
			return wire.String(typ, b, &m.AuthToken)
		case 6:
			return wire.String(typ, b, &m.DeviceID)
		case 7:
			return wire.Int64(typ, b, &m.LastRmqID)
		case 8:
			return wire.Message(typ, b, func(v []byte) error {
				s := &Setting{}
				if err := s.Unmarshal(v); err != nil {
					return err
				}
				m.Setting = append(m.Setting, s)
				return nil
			})
		case 10:
			var id string
			n := wire.String(typ, b, &id)
			if n > 0 {
				m.ReceivedPersistentID = append(m.ReceivedPersistentID, id)
			}
			return n
		case 12:
			return wire.Bool(typ, b, &m.AdaptiveHeartbeat)
		case 14:
			return wire.Bool(typ, b, &m.UseRmq2)
		case 15:
			return wire.Int64(typ, b, &m.AccountID)
		case 16:
			var v int32
			n := wire.Int32(typ, b, &v)
			m.AuthService = LoginRequest_AuthService(v)
			return n
		case 17:
			return wire.Int32(typ, b, &m.NetworkType)
		}
		return 0
	})
}

// ErrorInfo describes a server-side failure.
type ErrorInfo struct {
	Code    int32
	Message string
	Type    string
}

func (m *ErrorInfo) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, int64(m.Code))
	b = wire.AppendOptString(b, 2, m.Message)
	b = wire.AppendOptString(b, 3, m.Type)
	return b, nil
}

func (m *ErrorInfo) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.Int32(typ, b, &m.Code)
		case 2:
			return wire.String(typ, b, &m.Message)
		case 3:
			return wire.String(typ, b, &m.Type)
		}
		return 0
	})
}

// LoginResponse acknowledges a LoginRequest.
type LoginResponse struct {
	ID                   string
	JID                  string
	Error                *ErrorInfo
	StreamID             int32
	LastStreamIDReceived int32
	ServerTimestamp      int64
}

func (m *LoginResponse) GetID() string {
	if m == nil {
		return ""
	}
	return m.ID
}

func (m *LoginResponse) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, m.ID)
	b = wire.AppendOptString(b, 2, m.JID)
	if m.Error != nil {
		eb, err := m.Error.Marshal()
		if err != nil {
			return nil, err
		}
		b = wire.AppendMessage(b, 3, eb)
	}
	b = wire.AppendOptVarint(b, 5, int64(m.StreamID))
	b = wire.AppendOptVarint(b, 6, int64(m.LastStreamIDReceived))
	b = wire.AppendOptVarint(b, 8, m.ServerTimestamp)
	return b, nil
}

func (m *LoginResponse) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.ID)
		case 2:
			return wire.String(typ, b, &m.JID)
		case 3:
			return wire.Message(typ, b, func(v []byte) error {
				m.Error = &ErrorInfo{}
				return m.Error.Unmarshal(v)
			})
		case 5:
			return wire.Int32(typ, b, &m.StreamID)
		case 6:
			return wire.Int32(typ, b, &m.LastStreamIDReceived)
		case 8:
			return wire.Int64(typ, b, &m.ServerTimestamp)
		}
		return 0
	})
}

// Close asks the peer to end the stream.
type Close struct{}

func (m *Close) Marshal() ([]byte, error) { return nil, nil }
func (m *Close) Unmarshal(b []byte) error {
	return wire.Walk(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

// StreamErrorStanza reports a fatal stream error.
type StreamErrorStanza struct {
	Type string
	Text string
}

func (m *StreamErrorStanza) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, m.Type)
	b = wire.AppendOptString(b, 2, m.Text)
	return b, nil
}

func (m *StreamErrorStanza) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.Type)
		case 2:
			return wire.String(typ, b, &m.Text)
		}
		return 0
	})
}

// IqStanza_IqType is the IQ stanza type.
type IqStanza_IqType int32

const (
	IqStanza_GET    IqStanza_IqType = 0
	IqStanza_SET    IqStanza_IqType = 1
	IqStanza_RESULT IqStanza_IqType = 2
	IqStanza_IQERR  IqStanza_IqType = 3
)

func (t IqStanza_IqType) String() string {
	switch t {
	case IqStanza_GET:
		return "GET"
	case IqStanza_SET:
		return "SET"
	case IqStanza_RESULT:
		return "RESULT"
	case IqStanza_IQERR:
		return "IQ_ERROR"
	}
	return "UNKNOWN"
}

// IqStanza carries control queries such as selective acks.
type IqStanza struct {
	RmqID        int64
	Type         IqStanza_IqType
	ID           string
	From         string
	To           string
	PersistentID string
}

func (m *IqStanza) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendOptVarint(b, 1, m.RmqID)
	b = wire.AppendVarint(b, 2, int64(m.Type))
	b = wire.AppendString(b, 3, m.ID)
	b = wire.AppendOptString(b, 4, m.From)
	b = wire.AppendOptString(b, 5, m.To)
	b = wire.AppendOptString(b, 8, m.PersistentID)
	return b, nil
}

func (m *IqStanza) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.Int64(typ, b, &m.RmqID)
		case 2:
			var v int32
			n := wire.Int32(typ, b, &v)
			m.Type = IqStanza_IqType(v)
			return n
		case 3:
			return wire.String(typ, b, &m.ID)
		case 4:
			return wire.String(typ, b, &m.From)
		case 5:
			return wire.String(typ, b, &m.To)
		case 8:
			return wire.String(typ, b, &m.PersistentID)
		}
		return 0
	})
}

// AppData is one key/value pair of a data message payload.
type AppData struct {
	Key   string
	Value string
}

func (m *AppData) GetKey() string {
	if m == nil {
		return ""
	}
	return m.Key
}

func (m *AppData) GetValue() string {
	if m == nil {
		return ""
	}
	return m.Value
}

func (m *AppData) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, m.Key)
	b = wire.AppendString(b, 2, m.Value)
	return b, nil
}

func (m *AppData) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return wire.String(typ, b, &m.Key)
		case 2:
			return wire.String(typ, b, &m.Value)
		}
		return 0
	})
}

// DataMessageStanza delivers a push message.
type DataMessageStanza struct {
	ID                string
	From              string
	To                string
	Category          string
	Token             string
	AppData           []*AppData
	FromTrustedServer bool
	PersistentID      string
	StreamID          int32
	RegID             string
	TTL               int32
	Sent              int64
	RawData           []byte
	ImmediateAck      bool
}

func (m *DataMessageStanza) Marshal() ([]byte, error) {
	var b []byte
	b = wire.AppendOptString(b, 2, m.ID)
	b = wire.AppendString(b, 3, m.From)
	b = wire.AppendOptString(b, 4, m.To)
	b = wire.AppendString(b, 5, m.Category)
	b = wire.AppendOptString(b, 6, m.Token)
	for _, kv := range m.AppData {
		kb, err := kv.Marshal()
		if err != nil {
			return nil, err
		}
		b = wire.AppendMessage(b, 7, kb)
	}
	if m.FromTrustedServer {
		b = wire.AppendBool(b, 8, true)
	}
	b = wire.AppendOptString(b, 9, m.PersistentID)
	b = wire.AppendOptVarint(b, 10, int64(m.StreamID))
	b = wire.AppendOptString(b, 13, m.RegID)
	b = wire.AppendOptVarint(b, 17, int64(m.TTL))
	b = wire.AppendOptVarint(b, 18, m.Sent)
	b = wire.AppendBytes(b, 21, m.RawData)
	if m.ImmediateAck {
		b = wire.AppendBool(b, 24, true)
	}
	return b, nil
}

func (m *DataMessageStanza) Unmarshal(b []byte) error {
	return wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 2:
			return wire.String(typ, b, &m.ID)
		case 3:
			return wire.String(typ, b, &m.From)
		case 4:
			return wire.String(typ, b, &m.To)
		case 5:
			return wire.String(typ, b, &m.Category)
		case 6:
			return wire.String(typ, b, &m.Token)
		case 7:
			return wire.Message(typ, b, func(v []byte) error {
				kv := &AppData{}
				if err := kv.Unmarshal(v); err != nil {
					return err
				}
				m.AppData = append(m.AppData, kv)
				return nil
			})
		case 8:
			return wire.Bool(typ, b, &m.FromTrustedServer)
		case 9:
			return wire.String(typ, b, &m.PersistentID)
		case 10:
			return wire.Int32(typ, b, &m.StreamID)
		case 13:
			return wire.String(typ, b, &m.RegID)
		case 17:
			return wire.Int32(typ, b, &m.TTL)
		case 18:
			return wire.Int64(typ, b, &m.Sent)
		case 21:
			return wire.Bytes(typ, b, &m.RawData)
		case 24:
			return wire.Bool(typ, b, &m.ImmediateAck)
		}
		return 0
	})
}
