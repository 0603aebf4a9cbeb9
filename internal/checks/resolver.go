package checks

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks hosts up against one explicit nameserver instead of the
// system resolver.
type Resolver struct {
	client     *dns.Client
	nameserver string
}

func NewResolver(nameserver string) *Resolver {
	if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}
	return &Resolver{
		client:     &dns.Client{Timeout: 5 * time.Second},
		nameserver: nameserver,
	}
}

// LookupHost returns the first A record, falling back to AAAA. IP literals
// are returned unchanged.
func (r *Resolver) LookupHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)

		in, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
		if err != nil {
			return "", fmt.Errorf("DNS query failed: %w", err)
		}
		if in.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("DNS query failed with code: %s", dns.RcodeToString[in.Rcode])
		}

		for _, ans := range in.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				return rr.A.String(), nil
			case *dns.AAAA:
				return rr.AAAA.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no address records found for %s", host)
}
