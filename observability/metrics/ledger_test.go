package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecordsGaugesAndCounters(t *testing.T) {
	l := Instance()

	l.SetChainLength(42)
	require.Equal(t, float64(42), testutil.ToFloat64(l.chainLength))

	l.SetPeersConnected(3)
	require.Equal(t, float64(3), testutil.ToFloat64(l.peersConnected))

	l.SetAppIndexLag(5)
	require.Equal(t, float64(5), testutil.ToFloat64(l.appIndexLag))

	l.IncBlocksApplied()
	l.IncBlocksApplied()
	require.GreaterOrEqual(t, testutil.ToFloat64(l.blocksApplied), float64(2))
}

func TestLedgerNilReceiverIsSafe(t *testing.T) {
	var l *Ledger
	require.NotPanics(t, func() {
		l.SetChainLength(1)
		l.SetPeersConnected(1)
		l.SetAppIndexLag(1)
		l.IncExportRun("success")
		l.IncBlocksApplied()
	})
}
