package credits_test

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/promptsync/internal/credits"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClient_RealClockPollingStopsOnCleanup(t *testing.T) {
	ledger := newFakeLedger(time.Now)
	ledger.balances["u1"] = 3
	client := credits.New(credits.Options{
		Remote:       ledger,
		PollInterval: 5 * time.Millisecond,
	})

	updates := make(chan int64, 16)
	_, err := client.Subscribe("u1", func(b int64) {
		select {
		case updates <- b:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case b := <-updates:
		require.Equal(t, int64(3), b)
	case <-time.After(2 * time.Second):
		t.Fatal("no balance update from heartbeat")
	}

	client.Cleanup()
	settled := ledger.calls()
	time.Sleep(30 * time.Millisecond)
	require.LessOrEqual(t, ledger.calls(), settled+1)

	_, err = client.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
}
