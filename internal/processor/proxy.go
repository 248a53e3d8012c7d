package processor

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gruxi/internal/gruxlog"
	"gruxi/internal/httpmsg"
	"gruxi/internal/loadbalance"
	"gruxi/internal/model"
)

var proxyLog = gruxlog.New("ProxyProcessor")

// ProxyProcessor forwards requests to one of several load-balanced
// upstream servers (spec.md §4.I).
type ProxyProcessor struct {
	cfg    model.ProxyProcessor
	lb     *loadbalance.Registry
	client *http.Client
}

// NewProxy builds a ProxyProcessor backed by lb for upstream selection.
// The HTTP client keeps an idle-connection pool of roughly 30s, per
// spec.md §4.I step 6.
func NewProxy(cfg model.ProxyProcessor, lb *loadbalance.Registry) *ProxyProcessor {
	return &ProxyProcessor{
		cfg: cfg,
		lb:  lb,
		client: &http.Client{
			Transport: &http.Transport{
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// HandleRequest implements spec.md §4.I steps 1-6 plus upgrade bridging.
func (p *ProxyProcessor) HandleRequest(req *httpmsg.Request, site *model.Site) (*httpmsg.Response, error) {
	upstream, ok := p.lb.Next(p.cfg.ID, p.cfg.UpstreamServers)
	if !ok {
		return nil, &model.ProxyError{Kind: model.ProxyKindUpstreamUnavailable, Msg: "no upstream configured"}
	}

	forwardURL := strings.TrimRight(upstream, "/") + req.Raw.URL.RequestURI()
	forwardURL = applyURLRewrites(forwardURL, p.cfg.URLRewrites)

	parsed, err := url.Parse(forwardURL)
	if err != nil {
		return nil, &model.ProxyError{Kind: model.ProxyKindInternal, Msg: err.Error()}
	}

	outReq, err := http.NewRequest(req.Raw.Method, parsed.String(), req.Raw.Body)
	if err != nil {
		return nil, &model.ProxyError{Kind: model.ProxyKindInternal, Msg: err.Error()}
	}
	outReq.Header = req.Raw.Header.Clone()

	httpmsg.StripHopByHop(outReq.Header, req.Raw.Header.Get("Connection"), httpmsg.IsUpgradeRequest(req.Raw))
	httpmsg.ApplyForwardedHeaders(outReq.Header, req.Raw.RemoteAddr, req.Scheme(), req.Hostname())

	timeout := time.Duration(p.cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if httpmsg.IsUpgradeRequest(req.Raw) {
		return p.handleUpgrade(req, outReq, parsed, timeout)
	}

	client := &http.Client{Transport: p.client.Transport, Timeout: timeout}
	upstreamResp, err := client.Do(outReq)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &model.ProxyError{Kind: model.ProxyKindUpstreamTimeout, Msg: err.Error()}
		}
		return nil, &model.ProxyError{Kind: model.ProxyKindConnectionFailed, Msg: err.Error()}
	}

	resp := httpmsg.NewStreaming(upstreamResp.StatusCode, upstreamResp.Body)
	for k, vs := range upstreamResp.Header {
		for _, v := range vs {
			resp.Header.Add(k, v)
		}
	}
	return resp, nil
}

// applyURLRewrites implements spec.md §4.I's URL-rewrite rule: ordered
// from->to replacement, case-insensitive rules match lowercase but
// preserve the replacement's casing.
func applyURLRewrites(forwardURL string, rules []model.URLRewriteRule) string {
	for _, r := range rules {
		if r.IsCaseInsensitive {
			lowerURL := strings.ToLower(forwardURL)
			lowerFrom := strings.ToLower(r.From)
			if idx := strings.Index(lowerURL, lowerFrom); idx >= 0 {
				forwardURL = forwardURL[:idx] + r.To + forwardURL[idx+len(r.From):]
			}
		} else {
			forwardURL = strings.ReplaceAll(forwardURL, r.From, r.To)
		}
	}
	return forwardURL
}

// handleUpgrade dials the upstream directly, relays the handshake, and
// bridges both byte streams until either side closes (spec.md §4.I
// "Upgrade bridging"). It expects the caller (internal/reqentry) to have
// already hijacked the client connection and recorded it via
// req.SetUpgrade before the request reached this processor.
func (p *ProxyProcessor) handleUpgrade(req *httpmsg.Request, outReq *http.Request, upstreamURL *url.URL, timeout time.Duration) (*httpmsg.Response, error) {
	upstreamConn, err := net.DialTimeout("tcp", upstreamURL.Host, timeout)
	if err != nil {
		return nil, &model.ProxyError{Kind: model.ProxyKindConnectionFailed, Msg: err.Error()}
	}

	if err := outReq.Write(upstreamConn); err != nil {
		upstreamConn.Close()
		return nil, &model.ProxyError{Kind: model.ProxyKindConnectionFailed, Msg: err.Error()}
	}

	clientConn, ok := req.TakeUpgrade()
	if !ok {
		upstreamConn.Close()
		return nil, &model.ProxyError{Kind: model.ProxyKindInternal, Msg: "connection does not support upgrade"}
	}

	go bridgeBidirectional(clientConn, upstreamConn)

	resp := httpmsg.NewBuffered(http.StatusSwitchingProtocols, nil)
	resp.Upgraded = true
	return resp, nil
}

// bridgeBidirectional copies bytes both directions until either side
// closes, logging the byte counts (spec.md §4.I).
func bridgeBidirectional(a, b net.Conn) {
	defer a.Close()
	defer b.Close()

	done := make(chan int64, 2)
	go func() {
		n, _ := io.Copy(b, a)
		done <- n
	}()
	go func() {
		n, _ := io.Copy(a, b)
		done <- n
	}()

	n1 := <-done
	n2 := <-done
	proxyLog.Debugf("upgrade bridge closed: %d bytes client->upstream, %d bytes upstream->client", n1, n2)
}
