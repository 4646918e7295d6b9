// Package perspective is a client for the Perspective API comment scoring
// service, used as the toxicity annotation adapter. Scores are advisory:
// callers are expected to degrade to an unknown annotation when the
// service is unreachable rather than failing the request.
package perspective

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/ysocial/yserver/util"
)

const DefaultHost = "https://commentanalyzer.googleapis.com"

// ToxicThreshold is the summary probability at or above which a comment is
// flagged toxic.
const ToxicThreshold = 0.6

var requestedAttributes = []string{
	"TOXICITY",
	"SEVERE_TOXICITY",
	"IDENTITY_ATTACK",
	"INSULT",
	"PROFANITY",
	"THREAT",
}

type Client struct {
	Client *http.Client
	Host   string
	ApiKey string

	limiter *rate.Limiter
	cache   *lru.Cache[string, *Result]
	log     *slog.Logger
}

// schema: https://developers.perspectiveapi.com/s/about-the-api-methods
type analyzeRequest struct {
	Comment             analyzeComment      `json:"comment"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	Languages           []string            `json:"languages,omitempty"`
	DoNotStore          bool                `json:"doNotStore"`
}

type analyzeComment struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]attributeScore `json:"attributeScores"`
}

type attributeScore struct {
	SummaryScore summaryScore `json:"summaryScore"`
}

type summaryScore struct {
	Value float64 `json:"value"`
}

// Result holds the summary probabilities for the requested attributes.
type Result struct {
	Toxicity       float64
	SevereToxicity float64
	IdentityAttack float64
	Insult         float64
	Profanity      float64
	Threat         float64
}

func (r *Result) Toxic() bool {
	return r.Toxicity >= ToxicThreshold
}

// NewClient returns a scoring client, or nil when apiKey is empty; a nil
// *Client is safe to call and reports every text as unscorable, which is
// how the no-API-key configuration runs.
func NewClient(apiKey string, reqPerSecond int) *Client {
	if apiKey == "" {
		return nil
	}
	if reqPerSecond <= 0 {
		reqPerSecond = 1
	}
	cache, _ := lru.New[string, *Result](10_000)
	return &Client{
		Client:  util.RobustHTTPClient(),
		Host:    DefaultHost,
		ApiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(reqPerSecond), reqPerSecond),
		cache:   cache,
		log:     slog.Default().With("system", "perspective"),
	}
}

// Score analyzes a single text. Agent simulations repeat identical
// messages often, so results are cached by text digest.
func (c *Client) Score(ctx context.Context, text string) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("perspective scoring not configured")
	}

	key := textDigest(text)
	if res, ok := c.cache.Get(key); ok {
		analyzeCacheHits.Inc()
		return res, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.analyze(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, res)
	return res, nil
}

func (c *Client) analyze(ctx context.Context, text string) (*Result, error) {
	attrs := make(map[string]struct{}, len(requestedAttributes))
	for _, a := range requestedAttributes {
		attrs[a] = struct{}{}
	}
	reqObj := analyzeRequest{
		Comment:             analyzeComment{Text: text},
		RequestedAttributes: attrs,
		Languages:           []string{"en"},
		DoNotStore:          true,
	}
	reqBytes, err := json.Marshal(&reqObj)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.Host+"/v1alpha1/comments:analyze", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Add("key", c.ApiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "yserver/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		analyzeAPIDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := c.Client.Do(req)
	if err != nil {
		analyzeAPICount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("perspective request failed: %w", err)
	}
	defer res.Body.Close()

	analyzeAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("perspective request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read perspective resp body: %w", err)
	}

	var respObj analyzeResponse
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, fmt.Errorf("failed to parse perspective resp JSON: %w", err)
	}

	out := &Result{
		Toxicity:       respObj.summary("TOXICITY"),
		SevereToxicity: respObj.summary("SEVERE_TOXICITY"),
		IdentityAttack: respObj.summary("IDENTITY_ATTACK"),
		Insult:         respObj.summary("INSULT"),
		Profanity:      respObj.summary("PROFANITY"),
		Threat:         respObj.summary("THREAT"),
	}
	c.log.Debug("perspective-analyze-response", "toxicity", out.Toxicity, "severe", out.SevereToxicity)
	return out, nil
}

func (r analyzeResponse) summary(attr string) float64 {
	return r.AttributeScores[attr].SummaryScore.Value
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
