package transport

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// HeaderRoundTripper adds configured "Key: Value" header lines to every
// request that does not already set them.
type HeaderRoundTripper struct {
	Headers []string

	parsed    http.Header
	parseOnce sync.Once
}

func (r *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r.parseOnce.Do(func() {
		slog.Debug("Parsing headers", "headers", strings.Join(r.Headers, ", "))
		r.parsed = make(http.Header)
		for _, header := range r.Headers {
			k, v, ok := strings.Cut(header, ":")
			if !ok {
				continue
			}
			r.parsed.Add(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	})
	for k, v := range r.parsed {
		if _, ok := req.Header[k]; ok {
			continue
		}
		for _, hv := range v {
			req.Header.Add(k, hv)
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}
