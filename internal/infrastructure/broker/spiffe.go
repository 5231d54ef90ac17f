package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// spiffeTLSConfig builds an mTLS client config from the SPIFFE Workload API.
// The returned func releases the X509 source.
func spiffeTLSConfig(ctx context.Context, socket string) (*tls.Config, func() error, error) {
	addr := socket
	if !strings.Contains(addr, "://") {
		addr = "unix://" + addr
	}

	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClientOptions(workloadapi.WithAddr(addr)))
	if err != nil {
		return nil, nil, fmt.Errorf("open x509 source %s: %w", addr, err)
	}

	return tlsconfig.MTLSClientConfig(source, source, tlsconfig.AuthorizeAny()), source.Close, nil
}
