package dht_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/toktok/dhtcore/dht"
	"github.com/toktok/dhtcore/dht/dhtmock"
)

// Exercises the generated Transport mock directly against the public
// API, as an external (black-box) package: dhtmock imports dht, so it
// cannot be used from dht's own internal test package.
func TestBootstrapSendsThroughMockedTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockTransport := dhtmock.NewMockTransport(ctrl)

	sentTo := make(chan dht.Endpoint, 1)
	mockTransport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(to dht.Endpoint, data []byte) error {
		sentTo <- to
		return nil
	}).AnyTimes()
	mockTransport.EXPECT().Close().Return(nil)

	_, pub, err := dht.GenerateIdentity()
	require.NoError(t, err)
	sec, targetPub, err := dht.GenerateIdentity()
	require.NoError(t, err)

	d, err := dht.New(dht.Config{
		PublicKey: pub,
		SecretKey: sec,
		Transport: mockTransport,
	})
	require.NoError(t, err)
	defer d.Close()

	target := dht.Endpoint{IP: []byte{198, 51, 100, 9}, Port: 33445}
	d.Bootstrap(target, targetPub)
	d.Tick(time.Now())

	select {
	case got := <-sentTo:
		require.Equal(t, target.Port, got.Port)
	default:
		t.Fatal("bootstrap drain should have sent a get-nodes request through the transport")
	}
}
