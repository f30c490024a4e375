package fcm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/slush-dev/pushbridge/internal/mcspb"
)

const mcsVersion = 41

// mcsTag is the first byte of every MCS frame.
type mcsTag uint8

const (
	tagHeartbeatPing     mcsTag = 0
	tagHeartbeatAck      mcsTag = 1
	tagLoginRequest      mcsTag = 2
	tagLoginResponse     mcsTag = 3
	tagClose             mcsTag = 4
	tagIqStanza          mcsTag = 7
	tagDataMessageStanza mcsTag = 8
	tagStreamErrorStanza mcsTag = 10
)

// mcsClient speaks the Mobile Connection Server protocol on one connection.
// Data messages must carry plaintext AppData; raw_data payloads are an error.
type mcsClient struct {
	conn          io.ReadWriteCloser
	androidID     uint64
	securityToken uint64
	persistentIDs []string
	logger        *slog.Logger

	heartbeatInterval time.Duration

	onDataMessage  func(msg *mcspb.DataMessageStanza)
	onConnected    func()
	onDisconnected func(reason string)

	writeMu sync.Mutex
}

func newMCSClient(conn io.ReadWriteCloser, androidID, securityToken uint64, persistentIDs []string, logger *slog.Logger) *mcsClient {
	return &mcsClient{
		conn:              conn,
		androidID:         androidID,
		securityToken:     securityToken,
		persistentIDs:     persistentIDs,
		logger:            logger,
		heartbeatInterval: 5 * time.Minute,
	}
}

// connect logs in and reads frames until ctx is done, the server closes the
// stream or a frame fails to decode. Cancellation is not an error.
func (m *mcsClient) connect(ctx context.Context) error {
	// Closing conn unblocks the read loop on cancellation.
	connClosed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.conn.Close()
		case <-connClosed:
		}
	}()
	defer close(connClosed)

	if err := m.sendLogin(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("mcs: send login: %w", err)
	}

	// The server answers with its own version byte before any frame.
	var vBuf [1]byte
	if _, err := io.ReadFull(m.conn, vBuf[:]); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("mcs: read version: %w", err)
	}

	heartbeatCtx, heartbeatCancel := context.WithCancel(ctx)
	defer heartbeatCancel()
	go m.heartbeatLoop(heartbeatCtx)

	err := m.readLoop()
	if ctx.Err() != nil {
		m.disconnected("context cancelled")
		return nil
	}
	if err != nil {
		m.disconnected(err.Error())
	} else {
		m.disconnected("stream closed")
	}
	return err
}

func (m *mcsClient) disconnected(reason string) {
	if m.onDisconnected != nil {
		m.onDisconnected(reason)
	}
}

func (m *mcsClient) sendLogin() error {
	decID := strconv.FormatUint(m.androidID, 10)
	authToken := strconv.FormatUint(m.securityToken, 10)
	androidLoginID := "android-" + strconv.FormatUint(m.androidID, 16)

	loginReq := &mcspb.LoginRequest{
		ID:                   androidLoginID,
		Domain:               "mcs.android.com",
		User:                 decID,
		Resource:             decID,
		AuthToken:            authToken,
		DeviceID:             androidLoginID,
		LastRmqID:            1,
		ReceivedPersistentID: m.persistentIDs,
		UseRmq2:              true,
		AccountID:            1000000,
		AuthService:          mcspb.LoginRequest_ANDROID_ID,
		NetworkType:          1,
		Setting: []*mcspb.Setting{
			{Name: "new_vc", Value: "1"},
		},
	}

	return m.sendPacket(tagLoginRequest, loginReq, true)
}

func (m *mcsClient) sendPacket(tag mcsTag, msg mcspb.Message, includeVersion bool) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_, err = m.conn.Write(appendFrame(nil, tag, data, includeVersion))
	return err
}

// appendFrame appends an MCS frame to b: the version byte on the first frame
// of a connection, then tag, varint length and payload.
func appendFrame(b []byte, tag mcsTag, payload []byte, includeVersion bool) []byte {
	if includeVersion {
		b = append(b, mcsVersion)
	}
	b = append(b, byte(tag))
	b = binary.AppendUvarint(b, uint64(len(payload)))
	return append(b, payload...)
}

func (m *mcsClient) readLoop() error {
	for {
		tag, err := m.readTagByte()
		if err != nil {
			return fmt.Errorf("mcs: read tag: %w", err)
		}

		size, err := m.readVarint()
		if err != nil {
			return fmt.Errorf("mcs: read size: %w", err)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(m.conn, data); err != nil {
			return fmt.Errorf("mcs: read body: %w", err)
		}

		if err := m.handlePacket(tag, data); err != nil {
			return err
		}
	}
}

func (m *mcsClient) handlePacket(tag mcsTag, data []byte) error {
	switch tag {
	case tagLoginResponse:
		var resp mcspb.LoginResponse
		if err := resp.Unmarshal(data); err != nil {
			return fmt.Errorf("mcs: unmarshal LoginResponse: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("mcs: login rejected: code=%d message=%s", resp.Error.Code, resp.Error.Message)
		}
		m.logger.Debug("MCS login response", "id", resp.GetID())
		m.persistentIDs = nil
		if m.onConnected != nil {
			m.onConnected()
		}

	case tagHeartbeatPing:
		var ping mcspb.HeartbeatPing
		if err := ping.Unmarshal(data); err != nil {
			m.logger.Warn("MCS: failed to unmarshal HeartbeatPing", "error", err)
			return nil
		}
		m.logger.Debug("MCS heartbeat ping received")
		ack := &mcspb.HeartbeatAck{}
		if err := m.sendPacket(tagHeartbeatAck, ack, false); err != nil {
			return fmt.Errorf("mcs: send heartbeat ack: %w", err)
		}

	case tagHeartbeatAck:
		m.logger.Debug("MCS heartbeat ack received")

	case tagDataMessageStanza:
		var msg mcspb.DataMessageStanza
		if err := msg.Unmarshal(data); err != nil {
			m.logger.Warn("MCS: failed to unmarshal DataMessageStanza", "error", err)
			return nil
		}
		m.logger.Debug("MCS data message", "from", msg.From, "category", msg.Category, "persistentId", msg.PersistentID)

		if len(msg.RawData) > 0 {
			m.logger.Error("MCS: encrypted raw_data payload received", "persistentId", msg.PersistentID)
			return fmt.Errorf("mcs: encrypted raw_data payloads are not supported; reset the FCM registration")
		}

		if m.onDataMessage != nil {
			m.onDataMessage(&msg)
		}

	case tagClose:
		return fmt.Errorf("mcs: server sent close")

	case tagIqStanza:
		var iq mcspb.IqStanza
		if err := iq.Unmarshal(data); err != nil {
			m.logger.Warn("MCS: failed to unmarshal IqStanza", "error", err)
		} else {
			m.logger.Debug("MCS IqStanza received", "type", iq.Type, "id", iq.ID, "from", iq.From, "to", iq.To)
		}

	case tagStreamErrorStanza:
		var se mcspb.StreamErrorStanza
		if err := se.Unmarshal(data); err != nil {
			return fmt.Errorf("mcs: stream error (unmarshal failed: %w)", err)
		}
		return fmt.Errorf("mcs: stream error: type=%s text=%s", se.Type, se.Text)

	default:
		m.logger.Debug("MCS unknown tag", "tag", tag)
	}

	return nil
}

func (m *mcsClient) readTagByte() (mcsTag, error) {
	var buf [1]byte
	if _, err := io.ReadFull(m.conn, buf[:]); err != nil {
		return 0, err
	}
	return mcsTag(buf[0]), nil
}

func (m *mcsClient) readVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		var buf [1]byte
		if _, err := io.ReadFull(m.conn, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		result |= uint64(b&0x7F) << shift
		if b < 0x80 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("varint overflow: more than 10 bytes")
		}
	}
	return result, nil
}

func (m *mcsClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := &mcspb.HeartbeatPing{}
			if err := m.sendPacket(tagHeartbeatPing, ping, false); err != nil {
				m.logger.Warn("MCS: failed to send heartbeat ping", "error", err)
				return
			}
			m.logger.Debug("MCS heartbeat ping sent")
		}
	}
}
