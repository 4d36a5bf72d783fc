package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps the document size read from a product page.
const maxBody = 10 << 20

// HTTPEngine fetches pages without rendering them. The resulting pages are
// static goquery documents.
type HTTPEngine struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// timeout applies when a request carries none; an empty userAgent selects
// a desktop Chrome string.
func NewHTTPEngine(timeout time.Duration, userAgent string) *HTTPEngine {
	if userAgent == "" {
		userAgent = chromeUA
	}
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Open fetches req.URL. Error statuses are kept on the page rather than
// returned, so callers can classify a 404 or 410 themselves.
func (e *HTTPEngine) Open(ctx context.Context, req *OpenRequest) (Page, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "es-MX,es;q=0.9,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	page := &docPage{url: req.URL}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("http_engine: %w", context.Cause(ctx))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			page.partial = true
			page.parse(nil)
			return page, nil
		}
		return nil, fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	page.status = resp.StatusCode
	page.url = resp.Request.URL.String()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("http_engine: %w", context.Cause(ctx))
		case fetchCtx.Err() == nil:
			return nil, fmt.Errorf("http_engine: read body: %w", err)
		}
		// Timed out mid-body: keep what arrived.
		page.partial = true
	}
	page.parse(body)
	return page, nil
}

// docPage is a static page backed by a parsed document.
type docPage struct {
	url     string
	status  int
	partial bool
	doc     *goquery.Document
}

func (p *docPage) parse(body []byte) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	p.doc = goquery.NewDocumentFromNode(root)
}

func (p *docPage) URL() string     { return p.url }
func (p *docPage) StatusCode() int { return p.status }
func (p *docPage) Partial() bool   { return p.partial }
func (p *docPage) Live() bool      { return false }

func (p *docPage) Title(context.Context) string {
	return collapseSpace(p.doc.Find("title").First().Text())
}

func (p *docPage) Query(_ context.Context, selector string) ([]Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("http_engine: selector %q: %w", selector, err)
	}

	var nodes []Node
	p.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		nodes = append(nodes, Node{
			Text:    collapseSpace(s.Text()),
			Attrs:   nodeAttrs(n),
			Visible: visibleInMarkup(n),
		})
	})
	return nodes, nil
}

func (p *docPage) WaitFor(ctx context.Context, selector string, _ time.Duration) bool {
	nodes, err := p.Query(ctx, selector)
	return err == nil && len(nodes) > 0
}

func (p *docPage) Click(context.Context, string) error             { return ErrUnsupported }
func (p *docPage) EnterText(context.Context, string, string) error { return ErrUnsupported }
func (p *docPage) Screenshot(context.Context) ([]byte, error)      { return nil, ErrUnsupported }

func (p *docPage) HTML(context.Context) (string, error) {
	return p.doc.Html()
}

func (p *docPage) Close() error { return nil }

func nodeAttrs(n *html.Node) map[string]string {
	attrs := make(map[string]string, len(trackedAttrs))
	for _, a := range n.Attr {
		for _, name := range trackedAttrs {
			if a.Key == name {
				attrs[name] = a.Val
				break
			}
		}
	}
	return attrs
}

// visibleInMarkup reports whether neither n nor an ancestor is hidden by
// its attributes. Stylesheets are not evaluated.
func visibleInMarkup(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && hiddenByMarkup(nodeAttrs(cur)) {
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
