package peer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	records map[string][]string
	err     map[string]error
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err, ok := f.err[name]; ok {
		return nil, err
	}
	return f.records[name], nil
}

func TestSeedDiscoveryParsesTXTRecords(t *testing.T) {
	resolver := &fakeResolver{records: map[string][]string{
		"seed1.example.com": {"nodeId=node_a addr=10.0.0.1:7000"},
		"seed2.example.com": {"nodeId=node_b addr=10.0.0.2:7000", "malformed"},
	}}
	disc := NewSeedDiscovery(resolver, []string{"seed1.example.com", "seed2.example.com"})

	seeds, err := disc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	require.Contains(t, seeds, Seed{NodeID: "node_a", Address: "10.0.0.1:7000"})
	require.Contains(t, seeds, Seed{NodeID: "node_b", Address: "10.0.0.2:7000"})
}

func TestSeedDiscoveryToleratesSingleNameFailure(t *testing.T) {
	resolver := &fakeResolver{
		records: map[string][]string{"seed2.example.com": {"nodeId=node_b addr=10.0.0.2:7000"}},
		err:     map[string]error{"seed1.example.com": context.DeadlineExceeded},
	}
	disc := NewSeedDiscovery(resolver, []string{"seed1.example.com", "seed2.example.com"})

	seeds, err := disc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	require.Equal(t, "node_b", seeds[0].NodeID)
}
