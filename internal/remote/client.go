package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/platform/httpclient"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

// Client talks to the remote adherence and plan API. It is both the
// adherence log and the plan source when a remote API is configured.
type Client struct {
	http   *httpclient.Client
	logger *logrus.Logger
}

var (
	_ repository.AdherenceRepository = (*Client)(nil)
	_ repository.PlanSource          = (*Client)(nil)
)

// New creates a client for the API at baseURL. token, when set, is sent as a bearer token.
func New(baseURL, token string, timeout time.Duration, retry httpclient.RetryPolicy, logger *logrus.Logger) (*Client, error) {
	hc, err := httpclient.NewWithBaseURL(baseURL, timeout)
	if err != nil {
		return nil, err
	}
	hc.Retry = retry
	if token != "" {
		hc.Headers = map[string]string{"Authorization": "Bearer " + token}
	}
	return &Client{http: hc, logger: logger}, nil
}

// NewWithHTTPClient wraps an already configured http client
func NewWithHTTPClient(hc *httpclient.Client, logger *logrus.Logger) *Client {
	return &Client{http: hc, logger: logger}
}

type plansResponse struct {
	Plans []json.RawMessage `json:"plans"`
}

type eventsResponse struct {
	Events []*models.AdherenceEvent `json:"events"`
}

// Append posts an adherence event. Event ids are generated by the caller so
// the server can drop a retried duplicate.
func (c *Client) Append(ctx context.Context, event *models.AdherenceEvent) error {
	if err := c.http.DoJSON(ctx, http.MethodPost, "/adherence-events", event, nil); err != nil {
		return transportErr("record adherence event", err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, filters repository.AdherenceFilters) ([]*models.AdherenceEvent, error) {
	q := url.Values{}
	if filters.PlanID != "" {
		q.Set("plan_id", filters.PlanID)
	}
	if filters.Since != nil {
		q.Set("since", filters.Since.UTC().Format(time.RFC3339))
	}
	if filters.Until != nil {
		q.Set("until", filters.Until.UTC().Format(time.RFC3339))
	}

	path := "/adherence-events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp eventsResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, transportErr("list adherence events", err)
	}

	// the server may ignore a filter it does not know
	out := make([]*models.AdherenceEvent, 0, len(resp.Events))
	for _, e := range resp.Events {
		if e != nil && filters.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (c *Client) ActivePlans(ctx context.Context) ([]*models.MedicationPlan, error) {
	var resp plansResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/plans?active=true", nil, &resp); err != nil {
		return nil, transportErr("fetch active plans", err)
	}

	// one plan with an unknown code must not hide the others
	plans := make([]*models.MedicationPlan, 0, len(resp.Plans))
	for _, raw := range resp.Plans {
		var plan models.MedicationPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			c.logger.WithError(err).WithField("plan", string(raw)).Warn("Skipping undecodable plan")
			continue
		}
		plans = append(plans, &plan)
	}

	c.logger.WithFields(logrus.Fields{
		"plans":   len(plans),
		"skipped": len(resp.Plans) - len(plans),
	}).Debug("Fetched active plans")
	return plans, nil
}

func (c *Client) GetPlan(ctx context.Context, id string) (*models.MedicationPlan, error) {
	var plan models.MedicationPlan
	err := c.http.DoJSON(ctx, http.MethodGet, "/plans/"+url.PathEscape(id), nil, &plan)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, transportErr("fetch plan "+id, err)
	}
	return &plan, nil
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", models.ErrTransport, op, err)
}
