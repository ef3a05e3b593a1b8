// Package identity secures the HTTP facade with SPIFFE/SPIRE workload
// identity, used for mTLS between callers and cmd/slimlo-server when
// IdentityConfig.Enabled is set.
package identity

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// Source wraps a SPIFFE X.509 source obtained from a local SPIRE agent.
type Source struct {
	source      *workloadapi.X509Source
	trustDomain string
}

// NewSource connects to the SPIRE agent listening on socketPath.
func NewSource(ctx context.Context, socketPath, trustDomain string) (*Source, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	src, err := workloadapi.NewX509Source(ctx, workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)))
	if err != nil {
		return nil, fmt.Errorf("identity: connecting to spire agent at %s: %w", socketPath, err)
	}
	return &Source{source: src, trustDomain: trustDomain}, nil
}

// ServerTLSConfig returns an mTLS server config that authorizes any client
// identity in Source's trust domain.
func (s *Source) ServerTLSConfig() *tls.Config {
	td := spiffeid.RequireTrustDomainFromString(s.trustDomain)
	return tlsconfig.MTLSServerConfig(s.source, s.source, tlsconfig.AuthorizeMemberOf(td))
}

// Close releases the underlying workload API connection.
func (s *Source) Close() error {
	return s.source.Close()
}

// WorkloadID builds the SPIFFE ID SlimLO expects for a given workload name
// within its trust domain.
func WorkloadID(trustDomain, workload string) string {
	return fmt.Sprintf("spiffe://%s/slimlo/%s", trustDomain, workload)
}
