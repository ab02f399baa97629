package peer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// seedLookupTimeout bounds a single TXT query, mirroring the short sync
// timeout used elsewhere in the peer protocol.
const seedLookupTimeout = 3 * time.Second

// Resolver abstracts DNS TXT lookups so tests can supply an in-memory
// fixture instead of talking to a real resolver, mirroring
// p2p/seeds/registry.go's Resolver interface.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// dnsResolver issues real TXT queries via github.com/miekg/dns against a
// configured resolver address (host:port), the client-side counterpart of
// the teacher's ops/seeds/tools/dnsstub TXT server.
type dnsResolver struct {
	client     *dns.Client
	serverAddr string
}

// NewDNSResolver builds a Resolver that queries serverAddr (e.g.
// "1.1.1.1:53") directly, bypassing the OS resolver so seed discovery
// does not depend on local /etc/resolv.conf configuration.
func NewDNSResolver(serverAddr string) Resolver {
	return &dnsResolver{client: new(dns.Client), serverAddr: serverAddr}
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	reply, _, err := r.client.ExchangeContext(ctx, msg, r.serverAddr)
	if err != nil {
		return nil, fmt.Errorf("peer: dns query %s: %w", name, err)
	}
	if reply.Rcode == dns.RcodeNameError {
		return nil, nil
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("peer: dns query %s: rcode %d", name, reply.Rcode)
	}

	var records []string
	for _, answer := range reply.Answer {
		if txt, ok := answer.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// SeedDiscovery resolves bootstrap peer addresses from DNS TXT records.
// Each configured seed name is expected to answer with one or more TXT
// records of the form "nodeId=<id> addr=<host:port>".
type SeedDiscovery struct {
	resolver Resolver
	names    []string
}

// NewSeedDiscovery builds seed discovery over the given TXT record names
// (spec §6: BootstrapSeeds are "DNS names consulted for peer discovery").
func NewSeedDiscovery(resolver Resolver, names []string) *SeedDiscovery {
	return &SeedDiscovery{resolver: resolver, names: names}
}

// Seed is one resolved bootstrap peer.
type Seed struct {
	NodeID  string
	Address string
}

// Discover queries every configured name and returns the union of
// resolved seeds. A single name's failure does not abort the others.
func (d *SeedDiscovery) Discover(ctx context.Context) ([]Seed, error) {
	var seeds []Seed
	var firstErr error
	for _, name := range d.names {
		lookupCtx, cancel := context.WithTimeout(ctx, seedLookupTimeout)
		records, err := d.resolver.LookupTXT(lookupCtx, name)
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, record := range records {
			seed, ok := parseSeedRecord(record)
			if ok {
				seeds = append(seeds, seed)
			}
		}
	}
	if len(seeds) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return seeds, nil
}

func parseSeedRecord(record string) (Seed, bool) {
	var seed Seed
	for _, field := range strings.Fields(record) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "nodeId":
			seed.NodeID = value
		case "addr":
			seed.Address = value
		}
	}
	if seed.NodeID == "" || seed.Address == "" {
		return Seed{}, false
	}
	return seed, true
}
