package perspective

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClient(t *testing.T) {
	c := NewClient("", 4)
	require.Nil(t, c)

	_, err := c.Score(context.Background(), "anything")
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, "/v1alpha1/comments:analyze", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Comment.Text)
		assert.True(t, req.DoNotStore)

		resp := analyzeResponse{AttributeScores: map[string]attributeScore{
			"TOXICITY": {SummaryScore: summaryScore{Value: 0.82}},
			"INSULT":   {SummaryScore: summaryScore{Value: 0.4}},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("test-key", 100)
	require.NotNil(t, c)
	c.Host = srv.URL

	res, err := c.Score(context.Background(), "you are terrible")
	require.NoError(t, err)
	assert.Equal(t, 0.82, res.Toxicity)
	assert.Equal(t, 0.4, res.Insult)
	assert.True(t, res.Toxic())

	// repeated text is served from cache
	res2, err := c.Score(context.Background(), "you are terrible")
	require.NoError(t, err)
	assert.Equal(t, res, res2)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestScoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("test-key", 100)
	c.Host = srv.URL

	_, err := c.Score(context.Background(), "whatever")
	assert.Error(t, err)
}

func TestToxicThreshold(t *testing.T) {
	assert.False(t, (&Result{Toxicity: 0.59}).Toxic())
	assert.True(t, (&Result{Toxicity: 0.6}).Toxic())
}
