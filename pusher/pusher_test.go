package pusher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/slush-dev/pushbridge/pusher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *mockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	data := map[string]string{"title": "Hi", "body": "There"}

	t.Run("data only message", func(t *testing.T) {
		client := new(mockClient)
		client.On("Send", ctx, mock.MatchedBy(func(msg *messaging.Message) bool {
			return msg.Token == "tok-1" && msg.Notification == nil &&
				msg.Data["title"] == "Hi" && msg.Android.Priority == "high"
		})).Return("projects/p/messages/1", nil)

		p := pusher.NewWithClient(client, newTestLogger())
		id, err := p.Send(ctx, "tok-1", data)
		require.NoError(t, err)
		assert.Equal(t, "projects/p/messages/1", id)
		client.AssertExpectations(t)
	})

	t.Run("transport failure", func(t *testing.T) {
		client := new(mockClient)
		client.On("Send", ctx, mock.Anything).Return("", errors.New("network down"))

		p := pusher.NewWithClient(client, newTestLogger())
		_, err := p.Send(ctx, "tok-1", data)
		require.Error(t, err)
		assert.NotErrorIs(t, err, pusher.ErrInvalidToken)
		assert.Contains(t, err.Error(), "network down")
	})

	t.Run("empty token", func(t *testing.T) {
		client := new(mockClient)
		p := pusher.NewWithClient(client, nil)
		_, err := p.Send(ctx, "", data)
		require.Error(t, err)
		client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestSendMulticast(t *testing.T) {
	ctx := context.Background()
	data := map[string]string{"title": "Hi"}

	t.Run("no tokens", func(t *testing.T) {
		client := new(mockClient)
		p := pusher.NewWithClient(client, newTestLogger())
		res, err := p.SendMulticast(ctx, nil, data)
		require.NoError(t, err)
		assert.Equal(t, &pusher.Result{}, res)
		client.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})

	t.Run("partial failure", func(t *testing.T) {
		client := new(mockClient)
		client.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "m-1"},
				{Success: false, Error: errors.New("unavailable")},
			},
		}, nil)

		p := pusher.NewWithClient(client, newTestLogger())
		res, err := p.SendMulticast(ctx, []string{"a", "b"}, data)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Success)
		assert.Equal(t, 1, res.Failed)
		assert.Empty(t, res.InvalidTokens)
	})

	t.Run("batch failure", func(t *testing.T) {
		client := new(mockClient)
		client.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("auth failed"))

		p := pusher.NewWithClient(client, newTestLogger())
		_, err := p.SendMulticast(ctx, []string{"a"}, data)
		require.Error(t, err)
	})
}
