package document

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/rajarajane97/mastt/internal/config"
	"github.com/rajarajane97/mastt/internal/knowledge"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/rag"
)

// confluencePage mirrors the fields of the Confluence REST content
// representation this client reads.
type confluencePage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
}

type confluencePageList struct {
	Results []confluencePage `json:"results"`
}

// Confluence fetches pages over the Confluence REST API with basic auth.
type Confluence struct {
	baseURL  string
	username string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   log.Logger
}

// NewConfluence creates a client from config, or nil when the settings are
// incomplete — callers treat a nil client as "Confluence disabled". The
// limiter paces API requests; nil means unthrottled.
func NewConfluence(cfg config.ConfluenceConfig, limiter *rate.Limiter, logger log.Logger) *Confluence {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Confluence{
		baseURL:  cfg.URL,
		username: cfg.Username,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  limiter,
		logger:   logger,
	}
}

// FetchSpace lists up to limit pages of a space and converts their
// storage-format HTML bodies to text. Pages that fail to convert are logged
// and skipped.
func (c *Confluence) FetchSpace(ctx context.Context, spaceKey string, limit int) ([]rag.Document, error) {
	query := url.Values{
		"spaceKey": {spaceKey},
		"limit":    {strconv.Itoa(limit)},
		"expand":   {"body.storage,version"},
	}
	endpoint := fmt.Sprintf("%s/rest/api/content?%s", c.baseURL, query.Encode())

	var list confluencePageList
	if err := c.get(ctx, endpoint, &list); err != nil {
		return nil, fmt.Errorf("listing space %s: %w", spaceKey, err)
	}

	docs := make([]rag.Document, 0, len(list.Results))
	for _, page := range list.Results {
		text, err := htmlToText(page.Body.Storage.Value)
		if err != nil {
			c.logger.Warn("skipping confluence page", "id", page.ID, "title", page.Title, "error", err)
			continue
		}
		docs = append(docs, rag.Document{
			Text:       text,
			Source:     "confluence:" + page.ID,
			SourceType: knowledge.SourceTypeConfluence,
			Metadata: map[string]string{
				"title":   page.Title,
				"version": strconv.Itoa(page.Version.Number),
				"page_id": page.ID,
			},
		})
	}

	c.logger.Info("confluence space fetched", "space", spaceKey, "pages", len(docs))
	return docs, nil
}

func (c *Confluence) get(ctx context.Context, endpoint string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confluence returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
