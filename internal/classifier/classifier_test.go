package classifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/classifier"
	"github.com/jonesrussell/insight-crawler/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) *classifier.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return classifier.NewClient(srv.URL)
}

func TestClassifySourceType(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify/source-type", r.URL.Path)
		_, _ = w.Write([]byte(`{"technique":"rendered","confidence":0.8}`))
	})

	vote, err := client.ClassifySourceType(context.Background(), "https://example.com", "<html></html>")

	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.Equal(t, domain.TechniqueRendered, vote.Technique)
	assert.InDelta(t, 0.8, vote.Confidence, 0.001)
}

func TestClassifySourceTypeUnknownTechniqueIsNoOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"technique":"quantum","confidence":0.99}`))
	})

	vote, err := client.ClassifySourceType(context.Background(), "https://example.com", "")

	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestErrorStatusIsNoOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	vote, err := client.ClassifySourceType(context.Background(), "https://example.com", "")
	require.NoError(t, err)
	assert.Nil(t, vote)

	proposal, err := client.ProposeSelectors(context.Background(), "https://example.com", "")
	require.NoError(t, err)
	assert.Nil(t, proposal)
}

func TestMalformedReplyIsNoOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"technique":`))
	})

	vote, err := client.ClassifySourceType(context.Background(), "https://example.com", "")

	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestProposeSelectors(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify/selectors", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"selectors": {"item": ".post", "title": ".post h2", "link": ".post a"},
			"confidence": 0.7
		}`))
	})

	proposal, err := client.ProposeSelectors(context.Background(), "https://example.com/blog", "<html></html>")

	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, ".post", proposal.Selectors.Item)
	assert.Equal(t, ".post h2", proposal.Selectors.Title)
}

func TestProposeSelectorsIncompleteIsNoOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"selectors": {"item": ".post"}, "confidence": 0.9}`))
	})

	proposal, err := client.ProposeSelectors(context.Background(), "https://example.com", "")

	require.NoError(t, err)
	assert.Nil(t, proposal)
}

func TestPickEndpoint(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify/api-endpoint", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"index": 1,
			"items_path": "data.posts",
			"fields": {"title": "subject", "link": "url", "date": "created_at"}
		}`))
	})

	candidates := []classifier.EndpointCandidate{
		{URL: "https://example.com/api/config", Method: "GET"},
		{URL: "https://example.com/api/posts?page=1", Method: "GET"},
	}

	pick, err := client.PickEndpoint(context.Background(), "https://example.com", candidates)

	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, 1, pick.Index)
	assert.Equal(t, "data.posts", pick.ItemsPath)
	assert.Equal(t, "subject", pick.Fields.Title)
}

func TestPickEndpointOutOfRangeIsNoOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"index": 7, "items_path": "x", "fields": {"title": "t", "link": "l"}}`))
	})

	pick, err := client.PickEndpoint(context.Background(), "https://example.com",
		[]classifier.EndpointCandidate{{URL: "https://example.com/api"}})

	require.NoError(t, err)
	assert.Nil(t, pick)
}

func TestPickEndpointNoCandidates(t *testing.T) {
	client := newServer(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("should not be called")
	})

	pick, err := client.PickEndpoint(context.Background(), "https://example.com", nil)

	require.NoError(t, err)
	assert.Nil(t, pick)
}
