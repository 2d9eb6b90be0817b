package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// maxCapturedResponses caps how many JSON bodies one capture collects.
const maxCapturedResponses = 25

// maxCapturedBodyBytes skips giant payloads; list endpoints are small.
const maxCapturedBodyBytes = 2 << 20

// CapturedResponse is one JSON response observed while a page loaded.
type CapturedResponse struct {
	// URL is the request URL.
	URL string
	// Method is the HTTP method.
	Method string
	// Status is the HTTP status code.
	Status int64
	// Body is the raw response body.
	Body []byte
}

// CaptureJSON loads a page with network interception enabled and
// returns the XHR and fetch responses that carried JSON. The page HTML
// is discarded; callers wanting the DOM use Render.
func (m *Manager) CaptureJSON(ctx context.Context, pageURL string) ([]CapturedResponse, error) {
	tabCtx, release, err := m.acquirePage(ctx, m.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		mu       sync.Mutex
		requests = map[network.RequestID]*CapturedResponse{}
		finished []network.RequestID
	)

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch {
				return
			}

			mu.Lock()
			requests[e.RequestID] = &CapturedResponse{
				URL:    e.Request.URL,
				Method: e.Request.Method,
			}
			mu.Unlock()

		case *network.EventResponseReceived:
			mu.Lock()
			captured, ok := requests[e.RequestID]
			mu.Unlock()

			if !ok {
				return
			}

			if !isJSONResponse(e.Response.MimeType) {
				mu.Lock()
				delete(requests, e.RequestID)
				mu.Unlock()

				return
			}

			captured.Status = e.Response.Status

		case *network.EventLoadingFinished:
			mu.Lock()
			if _, ok := requests[e.RequestID]; ok {
				finished = append(finished, e.RequestID)
			}
			mu.Unlock()
		}
	})

	runErr := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
	)
	if runErr != nil {
		if isSessionError(runErr) {
			m.Discard()
		}

		return nil, fmt.Errorf("capture %s: %w", pageURL, runErr)
	}

	// Bodies are only retrievable after loading finished, on the tab's
	// CDP executor.
	exec := chromedp.FromContext(tabCtx)
	cdpCtx := cdp.WithExecutor(tabCtx, exec.Target)

	mu.Lock()
	ids := make([]network.RequestID, len(finished))
	copy(ids, finished)
	mu.Unlock()

	var captured []CapturedResponse

	for _, id := range ids {
		if len(captured) >= maxCapturedResponses {
			break
		}

		mu.Lock()
		meta := requests[id]
		mu.Unlock()

		if meta == nil || meta.Status >= 400 {
			continue
		}

		body, bodyErr := network.GetResponseBody(id).Do(cdpCtx)
		if bodyErr != nil || len(body) == 0 || len(body) > maxCapturedBodyBytes {
			continue
		}

		captured = append(captured, CapturedResponse{
			URL:    meta.URL,
			Method: meta.Method,
			Status: meta.Status,
			Body:   body,
		})
	}

	return captured, nil
}

// isJSONResponse reports whether a MIME type is JSON-bearing.
func isJSONResponse(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)

	return strings.Contains(mimeType, "application/json") ||
		strings.Contains(mimeType, "+json") ||
		mimeType == "text/json"
}
