// Package apidetect discovers hidden JSON APIs behind listing pages. It
// loads a page in the browser, observes the XHR and fetch traffic, and
// looks for a response carrying an article list. When a classifier is
// available it picks the endpoint and field mapping; otherwise key-name
// heuristics do.
package apidetect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonesrussell/insight-crawler/internal/browser"
	"github.com/jonesrussell/insight-crawler/internal/classifier"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/jsonpath"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

const (
	// minListItems and maxListItems bound what counts as an article
	// list. One-element arrays are usually config; hundreds are usually
	// tag clouds or autocomplete data.
	minListItems = 2
	maxListItems = 100

	// maxWalkDepth bounds the search for nested arrays.
	maxWalkDepth = 4

	// candidateSampleBytes bounds the body excerpt sent to the
	// classifier per candidate.
	candidateSampleBytes = 4 << 10
)

// Capturer loads a page and reports the JSON responses it triggered.
type Capturer interface {
	CaptureJSON(ctx context.Context, pageURL string) ([]browser.CapturedResponse, error)
}

// Picker chooses the article-list endpoint among candidates. Optional.
type Picker interface {
	PickEndpoint(ctx context.Context, pageURL string, candidates []classifier.EndpointCandidate) (*classifier.EndpointPick, error)
}

// Detector finds hidden list APIs.
type Detector struct {
	capturer Capturer
	picker   Picker
	log      logger.Logger
}

// NewDetector creates a Detector. picker may be nil.
func NewDetector(capturer Capturer, picker Picker, log logger.Logger) *Detector {
	return &Detector{capturer: capturer, picker: picker, log: log}
}

// candidate is one captured response that plausibly carries a list.
type candidate struct {
	response  browser.CapturedResponse
	itemsPath string
	items     []any
}

// Detect observes a page's API traffic and returns a descriptor for the
// article-list endpoint, or nil when nothing qualifies. Absence is not
// an error.
func (d *Detector) Detect(ctx context.Context, pageURL string) (*domain.APIDescriptor, error) {
	responses, err := d.capturer.CaptureJSON(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("capture traffic: %w", err)
	}

	candidates := collectCandidates(responses)
	if len(candidates) == 0 {
		return nil, nil
	}

	if d.picker != nil {
		if descriptor := d.pickWithClassifier(ctx, pageURL, candidates); descriptor != nil {
			return descriptor, nil
		}
	}

	for _, c := range candidates {
		fields, ok := inferFields(c.items)
		if !ok {
			continue
		}

		d.log.Info("hidden api detected heuristically",
			logger.String("endpoint", c.response.URL),
			logger.String("items_path", c.itemsPath))

		return &domain.APIDescriptor{
			URL:       c.response.URL,
			Method:    c.response.Method,
			ItemsPath: c.itemsPath,
			Fields:    fields,
		}, nil
	}

	return nil, nil
}

// pickWithClassifier defers endpoint and field choice to the
// classifier. Returns nil on any disagreement with the captured data.
func (d *Detector) pickWithClassifier(ctx context.Context, pageURL string, candidates []candidate) *domain.APIDescriptor {
	offered := make([]classifier.EndpointCandidate, len(candidates))
	for i, c := range candidates {
		offered[i] = classifier.EndpointCandidate{
			URL:    c.response.URL,
			Method: c.response.Method,
			Sample: sample(c.response.Body),
		}
	}

	pick, err := d.picker.PickEndpoint(ctx, pageURL, offered)
	if err != nil || pick == nil {
		return nil
	}

	chosen := candidates[pick.Index]

	// The pick must actually resolve against the captured body.
	var doc any
	if jsonErr := json.Unmarshal(chosen.response.Body, &doc); jsonErr != nil {
		return nil
	}

	items, arrErr := jsonpath.Array(doc, pick.ItemsPath)
	if arrErr != nil || len(items) < minListItems {
		return nil
	}

	d.log.Info("hidden api picked by classifier",
		logger.String("endpoint", chosen.response.URL),
		logger.String("items_path", pick.ItemsPath))

	return &domain.APIDescriptor{
		URL:       chosen.response.URL,
		Method:    chosen.response.Method,
		ItemsPath: pick.ItemsPath,
		Fields:    pick.Fields,
	}
}

// collectCandidates scans captured responses for object arrays of
// plausible list size.
func collectCandidates(responses []browser.CapturedResponse) []candidate {
	var candidates []candidate

	for _, resp := range responses {
		var doc any
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			continue
		}

		path, items := findObjectArray(doc, "", 0)
		if items == nil {
			continue
		}

		candidates = append(candidates, candidate{
			response:  resp,
			itemsPath: path,
			items:     items,
		})
	}

	return candidates
}

// findObjectArray walks a decoded document for the first array of
// minListItems..maxListItems objects, breadth-first by key order.
func findObjectArray(node any, path string, depth int) (string, []any) {
	if depth > maxWalkDepth {
		return "", nil
	}

	switch v := node.(type) {
	case []any:
		if isObjectList(v) {
			return path, v
		}

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}

			if found, items := findObjectArray(v[k], childPath, depth+1); items != nil {
				return found, items
			}
		}
	}

	return "", nil
}

// isObjectList reports whether v is an array of objects within the
// plausible list-size window.
func isObjectList(v []any) bool {
	if len(v) < minListItems || len(v) > maxListItems {
		return false
	}

	for _, item := range v {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}

	return true
}

// Field-name heuristics, in preference order.
var (
	titleKeys = []string{"title", "subject", "headline", "name", "postTitle", "post_title"}
	linkKeys  = []string{"url", "link", "href", "permalink", "web_url", "webUrl"}
	dateKeys  = []string{"published_at", "publishedAt", "created_at", "createdAt", "date", "pubDate", "regDate", "reg_date"}
	imageKeys = []string{"thumbnail", "image", "thumbnail_url", "thumbnailUrl", "image_url", "imageUrl", "cover"}
	byKeys    = []string{"author", "writer", "by", "author_name", "authorName", "nickname"}
)

// inferFields maps article fields onto item keys by name. Requires a
// usable title and an absolute link; everything else is optional.
func inferFields(items []any) (domain.APIFieldMap, bool) {
	first, ok := items[0].(map[string]any)
	if !ok {
		return domain.APIFieldMap{}, false
	}

	fields := domain.APIFieldMap{
		Title:     matchKey(first, titleKeys, anyString),
		Link:      matchKey(first, linkKeys, absoluteURL),
		Date:      matchKey(first, dateKeys, anyString),
		Thumbnail: matchKey(first, imageKeys, anyString),
		Author:    matchKey(first, byKeys, anyString),
	}

	if fields.Title == "" || fields.Link == "" {
		return domain.APIFieldMap{}, false
	}

	return fields, true
}

// matchKey returns the first candidate key present on the item whose
// value passes accept.
func matchKey(item map[string]any, keys []string, accept func(any) bool) string {
	for _, k := range keys {
		if v, ok := item[k]; ok && accept(v) {
			return k
		}
	}

	return ""
}

func anyString(v any) bool {
	s, ok := v.(string)

	return ok && strings.TrimSpace(s) != ""
}

func absoluteURL(v any) bool {
	s, ok := v.(string)

	return ok && (strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"))
}

// sample truncates a body for classifier submission.
func sample(body []byte) string {
	if len(body) <= candidateSampleBytes {
		return string(body)
	}

	return string(body[:candidateSampleBytes])
}
