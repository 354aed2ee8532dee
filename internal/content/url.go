// Package content turns a submitted URL into a stored bookmark: it
// normalizes the URL, derives the content identity hash, fetches the page,
// extracts the readable article, and localizes its images into static
// storage.
package content

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/spaolacci/murmur3"
)

// NormalizeURL canonicalizes a submitted URL. The query string and fragment
// are dropped so tracking parameters never produce distinct bookmarks for
// the same document. The URL must be absolute http(s) with a host.
func NormalizeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in URL %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// BookmarkID derives the stable content identity for a normalized URL: the
// murmur3 x64-128 hash of host and path, base64url encoded. The same
// document always maps to the same id, across users and across retries.
func BookmarkID(u *url.URL) string {
	h1, h2 := murmur3.Sum128([]byte(u.Host + "." + u.Path))
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i] = byte(h1 >> (8 * i))
		buf[8+i] = byte(h2 >> (8 * i))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
