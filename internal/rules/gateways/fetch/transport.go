package fetch

import (
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// newTransport clones the default transport and routes it through proxyURL.
// http(s) proxies use the transport's Proxy hook; socks5 proxies replace the dialer.
func newTransport(proxyURL string) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL == "" {
		return tr, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf(errInvalidProxy, err)
	}

	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf(errInvalidProxy, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf(errInvalidProxy, fmt.Errorf("dialer for %s does not support contexts", u.Scheme))
		}
		tr.Proxy = nil
		tr.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf(errInvalidProxy, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	return tr, nil
}
