package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
)

func TestBatchWireRoundTrip(t *testing.T) {
	ev := events.NewAssetAllowed(5, common.HexToAddress("0xe7e1"), "WETH", 1)
	ev.Seq = 9

	data, err := gobEncode(BatchWire{Origin: "self", Events: []events.Event{*ev}})
	require.NoError(t, err)

	var w BatchWire
	require.NoError(t, gobDecode(data, &w))
	require.Len(t, w.Events, 1)
	require.EqualValues(t, 9, w.Events[0].Seq)
	require.NotNil(t, w.Events[0].Index)
	require.EqualValues(t, 1, *w.Events[0].Index)
}

func TestPublishReachesLocalSubscriber(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a libp2p host")
	}
	ctx := context.Background()

	n, err := NewLibp2pNet(ctx, Libp2pConfig{
		ListenAddr: "/ip4/127.0.0.1/tcp/0",
		Topic:      "escrow-events-test",
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, n.Close()) }()

	got := make(chan []*events.Event, 1)
	n.SetHandler(func(_ context.Context, _ peer.ID, batch []*events.Event) { got <- batch })

	ev := events.NewOrderCancelled(1, 3, common.HexToAddress("0x5e11"), uint256.NewInt(7))
	ev.Seq = 12
	require.NoError(t, n.Publish(ctx, []*events.Event{ev}))

	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		require.EqualValues(t, 12, batch[0].Seq)
		require.Equal(t, "7", batch[0].Amount)
	case <-time.After(5 * time.Second):
		t.Fatal("batch not delivered")
	}
}
