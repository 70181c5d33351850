package dispatcher

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"go-guardian/internal/logging"
)

// HTTPPool hands out fasthttp clients round-robin.
type HTTPPool struct {
	clients []*fasthttp.Client
	next    atomic.Uint64
}

func NewHTTPPool(size int, timeout time.Duration) *HTTPPool {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
	}

	clients := make([]*fasthttp.Client, size)
	for i := range clients {
		clients[i] = &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 180 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConnWaitTimeout:  150 * time.Millisecond,

			ReadBufferSize:      65536,
			WriteBufferSize:     65536,
			MaxResponseBodySize: 4 * 1024 * 1024,

			DisableHeaderNamesNormalizing: true,
			DisablePathNormalizing:        true,

			// Remediation calls are never retried.
			MaxIdemponentCallAttempts: 1,
			DialDualStack:             true,
			TLSConfig:                 tlsConfig,
			NoDefaultUserAgentHeader:  true,
		}
	}

	return &HTTPPool{clients: clients}
}

func (hp *HTTPPool) Client() *fasthttp.Client {
	n := hp.next.Add(1) - 1
	return hp.clients[n%uint64(len(hp.clients))]
}

// Warmup opens connections to baseURL so the first ban does not pay for the
// TLS handshake.
func (hp *HTTPPool) Warmup(ctx context.Context, baseURL string) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	warm := 0
	for _, c := range hp.clients {
		if ctx.Err() != nil {
			return
		}
		req.SetRequestURI(baseURL + "/gateway")
		req.Header.SetMethod(fasthttp.MethodGet)
		if err := c.DoTimeout(req, resp, 2*time.Second); err == nil {
			warm++
		}
	}
	logging.Info("[DISPATCH] Warmed %d/%d HTTP clients", warm, len(hp.clients))
}
