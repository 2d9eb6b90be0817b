package apidetect_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/apidetect"
	"github.com/jonesrussell/insight-crawler/internal/browser"
	"github.com/jonesrussell/insight-crawler/internal/classifier"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

func domainFields(title, link string) domain.APIFieldMap {
	return domain.APIFieldMap{Title: title, Link: link}
}

type mockCapturer struct {
	responses []browser.CapturedResponse
	err       error
}

func (m *mockCapturer) CaptureJSON(_ context.Context, _ string) ([]browser.CapturedResponse, error) {
	return m.responses, m.err
}

type mockPicker struct {
	pick *classifier.EndpointPick
}

func (m *mockPicker) PickEndpoint(_ context.Context, _ string, _ []classifier.EndpointCandidate) (*classifier.EndpointPick, error) {
	return m.pick, nil
}

const postsBody = `{
	"data": {
		"posts": [
			{"title": "First post", "url": "https://example.com/p/1", "created_at": "2026-01-01"},
			{"title": "Second post", "url": "https://example.com/p/2", "created_at": "2026-01-02"},
			{"title": "Third post", "url": "https://example.com/p/3", "created_at": "2026-01-03"}
		]
	}
}`

func TestDetectHeuristic(t *testing.T) {
	capturer := &mockCapturer{responses: []browser.CapturedResponse{
		{URL: "https://example.com/api/config", Method: "GET", Body: []byte(`{"theme":"dark"}`)},
		{URL: "https://example.com/api/posts?page=1", Method: "GET", Body: []byte(postsBody)},
	}}

	detector := apidetect.NewDetector(capturer, nil, logger.NewNop())

	descriptor, err := detector.Detect(context.Background(), "https://example.com/blog")

	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, "https://example.com/api/posts?page=1", descriptor.URL)
	assert.Equal(t, "data.posts", descriptor.ItemsPath)
	assert.Equal(t, "title", descriptor.Fields.Title)
	assert.Equal(t, "url", descriptor.Fields.Link)
	assert.Equal(t, "created_at", descriptor.Fields.Date)
}

func TestDetectNothingQualifies(t *testing.T) {
	capturer := &mockCapturer{responses: []browser.CapturedResponse{
		// Single-element array: below the list-size floor.
		{URL: "https://example.com/api/one", Body: []byte(`{"items":[{"title":"t","url":"https://e.com/1"}]}`)},
		// Array of scalars.
		{URL: "https://example.com/api/tags", Body: []byte(`{"tags":["go","web","infra"]}`)},
		// Objects without a usable link.
		{URL: "https://example.com/api/counts", Body: []byte(`{"rows":[{"title":"a","n":1},{"title":"b","n":2}]}`)},
	}}

	detector := apidetect.NewDetector(capturer, nil, logger.NewNop())

	descriptor, err := detector.Detect(context.Background(), "https://example.com")

	require.NoError(t, err)
	assert.Nil(t, descriptor)
}

func TestDetectNoTraffic(t *testing.T) {
	detector := apidetect.NewDetector(&mockCapturer{}, nil, logger.NewNop())

	descriptor, err := detector.Detect(context.Background(), "https://example.com")

	require.NoError(t, err)
	assert.Nil(t, descriptor)
}

func TestDetectCaptureErrorPropagates(t *testing.T) {
	detector := apidetect.NewDetector(&mockCapturer{err: errors.New("browser crashed")}, nil, logger.NewNop())

	_, err := detector.Detect(context.Background(), "https://example.com")

	assert.Error(t, err)
}

func TestDetectClassifierPickWins(t *testing.T) {
	capturer := &mockCapturer{responses: []browser.CapturedResponse{
		{URL: "https://example.com/api/posts", Method: "GET", Body: []byte(postsBody)},
	}}

	picker := &mockPicker{pick: &classifier.EndpointPick{
		Index:     0,
		ItemsPath: "data.posts",
		Fields:    domainFields("title", "url"),
	}}

	detector := apidetect.NewDetector(capturer, picker, logger.NewNop())

	descriptor, err := detector.Detect(context.Background(), "https://example.com/blog")

	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, "data.posts", descriptor.ItemsPath)
	assert.Equal(t, "title", descriptor.Fields.Title)
}

func TestDetectBadClassifierPickFallsBackToHeuristics(t *testing.T) {
	capturer := &mockCapturer{responses: []browser.CapturedResponse{
		{URL: "https://example.com/api/posts", Method: "GET", Body: []byte(postsBody)},
	}}

	// Path does not resolve in the captured body.
	picker := &mockPicker{pick: &classifier.EndpointPick{
		Index:     0,
		ItemsPath: "data.articles",
		Fields:    domainFields("title", "url"),
	}}

	detector := apidetect.NewDetector(capturer, picker, logger.NewNop())

	descriptor, err := detector.Detect(context.Background(), "https://example.com/blog")

	require.NoError(t, err)
	require.NotNil(t, descriptor)
	assert.Equal(t, "data.posts", descriptor.ItemsPath)
}
