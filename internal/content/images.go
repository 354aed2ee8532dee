package content

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

const (
	// maxImageBytes bounds a single image download.
	maxImageBytes = 10 << 20

	// imageFetchConcurrency caps parallel downloads per page.
	imageFetchConcurrency = 4
)

// imageExtensions we keep from the original file name; anything else gets
// a bare hash name.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".avif": true,
}

// localizeImages downloads every <img> in the article, stores each under the
// bookmark's static directory, and rewrites its src to the local public path.
// A failed image keeps its original src; one broken image never fails the
// page.
func (p *Processor) localizeImages(ctx context.Context, doc *goquery.Document, pageURL *url.URL, userID uuid.UUID, bookmarkID string) error {
	type imageRef struct {
		sel *goquery.Selection
		src *url.URL
	}

	var refs []imageRef
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		abs, err := pageURL.Parse(src)
		if err != nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		refs = append(refs, imageRef{sel: sel, src: abs})
	})
	if len(refs) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFetchConcurrency)

	for _, ref := range refs {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			data, err := p.fetchImage(gctx, ref.src)
			if err != nil {
				p.logger.Warn("image fetch failed, keeping original src",
					"bookmark_id", bookmarkID, "src", ref.src.String(), "error", err)
				return nil
			}
			name := imageFileName(ref.src)
			local, err := p.static.Save(userID, bookmarkID, name, data)
			if err != nil {
				p.logger.Warn("image store failed, keeping original src",
					"bookmark_id", bookmarkID, "src", ref.src.String(), "error", err)
				return nil
			}
			mu.Lock()
			ref.sel.SetAttr("src", local)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) fetchImage(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building image request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}
	return data, nil
}

// imageFileName derives a stable name from the resolved image URL, the same
// murmur3 identity scheme bookmarks use. Re-processing a page overwrites each
// image in place instead of accumulating copies. A known extension from the
// source URL is kept when present.
func imageFileName(src *url.URL) string {
	h1, h2 := murmur3.Sum128([]byte(src.String()))
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i] = byte(h1 >> (8 * i))
		buf[8+i] = byte(h2 >> (8 * i))
	}
	name := base64.RawURLEncoding.EncodeToString(buf)

	ext := strings.ToLower(path.Ext(src.Path))
	if !imageExtensions[ext] {
		ext = ""
	}
	return name + ext
}
