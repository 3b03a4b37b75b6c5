package dht

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFriendDelFriendLockCounting(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	friendPub := keyWithByte(0x20)

	lock1, err := d.AddFriend(friendPub, nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(1), lock1)

	lock2, err := d.AddFriend(friendPub, nil, nil, 1)
	require.NoError(t, err)
	require.Equal(t, uint16(2), lock2)
	require.NotNil(t, d.friends.find(friendPub), "still tracked while either lock is held")

	require.NoError(t, d.DelFriend(friendPub, lock1))
	require.NotNil(t, d.friends.find(friendPub), "one remaining lock keeps the friend tracked")

	require.NoError(t, d.DelFriend(friendPub, lock2))
	require.Nil(t, d.friends.find(friendPub), "last release drops the friend entirely")
}

func TestDelFriendUnknownKeyFails(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	err := d.DelFriend(keyWithByte(0x99), 1)
	require.ErrorIs(t, err, ErrFriendNotFound)
}

func TestFriendIPReportsBestKnownEndpoint(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	friendPub := keyWithByte(0x21)

	_, status := d.FriendIP(friendPub)
	require.Equal(t, FriendIPNotAFriend, status)

	_, err := d.AddFriend(friendPub, nil, nil, 0)
	require.NoError(t, err)

	_, status = d.FriendIP(friendPub)
	require.Equal(t, FriendIPNotFound, status)

	f := d.friends.find(friendPub)
	f.addOrRefresh(d.now, friendPub, epFor(8))

	ep, status := d.FriendIP(friendPub)
	require.Equal(t, FriendIPFound, status)
	require.Equal(t, uint16(1008), ep.Port)
}

func TestRoutePacketSendsToDirectCloseListNeighbor(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestDHTOnNetwork(t, net, epFor(1))
	b := newTestDHTOnNetwork(t, net, epFor(2))
	a.closeList.addOrRefresh(a.now, b.publicKey, epFor(2))

	require.NoError(t, a.RoutePacket(b.publicKey, []byte("hello")))
	_, data, ok := b.cfg.Transport.Recv()
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)
}

func TestRoutePacketUnknownKeyFails(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	err := d.RoutePacket(keyWithByte(0x55), []byte("x"))
	require.ErrorIs(t, err, ErrFriendNotFound)
}

func TestRouteToFriendRequiresMinimumReporters(t *testing.T) {
	net := NewMemoryNetwork()
	a := newTestDHTOnNetwork(t, net, epFor(1))
	friendPub := keyWithByte(0x30)
	_, err := a.AddFriend(friendPub, nil, nil, 0)
	require.NoError(t, err)
	f := a.friends.find(friendPub)

	for i := 0; i < MinReportersForRoute-1; i++ {
		reporter := keyWithByte(byte(0x40 + i))
		f.addOrRefresh(a.now, reporter, epFor(byte(0x40+i)))
		e := &f.clients[i]
		e.Assoc4.ReturnedAt = a.now
	}
	require.Equal(t, 0, a.RouteToFriend(friendPub, []byte("x")), "below threshold must route to nobody")

	reporter := keyWithByte(0x4F)
	f.addOrRefresh(a.now, reporter, epFor(0x4F))
	for i := range f.clients {
		if f.clients[i].PublicKey == reporter {
			f.clients[i].Assoc4.ReturnedAt = a.now
		}
	}

	n := a.RouteToFriend(friendPub, []byte("x"))
	require.Equal(t, MinReportersForRoute, n)
}

func TestRouteToFriendUnknownFriendReturnsZero(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	require.Equal(t, 0, d.RouteToFriend(keyWithByte(0x1), []byte("x")))
}

func TestSizeReflectsCloseListOccupancy(t *testing.T) {
	d := newTestDHT(t, epFor(1))
	require.Equal(t, 0, d.Size())
	d.closeList.addOrRefresh(d.now, keyWithByte(0x01), epFor(1))
	require.Equal(t, 1, d.Size())
}
