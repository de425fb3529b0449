package analysis

import (
	"net"
	"net/http"
	"time"
)

// SharedHTTPClient returns the pooled client used for every outbound call
// to the analysis service and to image hosts. timeout bounds one request;
// the response-header wait gets all of it because a cold analysis service
// sits silent for most of its start-up. Proxies come from HTTPS_PROXY and
// friends for deployments with egress proxies. The per-event ceiling
// across download plus analysis is applied by relay.Relay.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
