package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 5 * time.Second

// RESTClient talks to the hosted relational store over its PostgREST-style
// interface. Row-level authorization lives server-side; this client only
// carries the service key.
type RESTClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewRESTClient(baseURL, serviceKey string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &RESTClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) Lookup(ctx context.Context, memberID string) (Member, bool, error) {
	endpoint := c.baseURL + "/rest/v1/members?member_id=eq." + url.QueryEscape(memberID) + "&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Member{}, false, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Member{}, false, fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Member{}, false, fmt.Errorf("%w: member lookup status %d", ErrDownstream, resp.StatusCode)
	}

	var members []Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return Member{}, false, fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	if len(members) == 0 {
		return Member{}, false, nil
	}
	return members[0], true, nil
}

func (c *RESTClient) CreateIncident(ctx context.Context, inc Incident) (Ref, error) {
	payload := struct {
		ID string `json:"id"`
		Incident
	}{ID: NewID(), Incident: inc}

	body, err := json.Marshal(payload)
	if err != nil {
		return Ref{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/incidents", bytes.NewReader(body))
	if err != nil {
		return Ref{}, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Ref{}, fmt.Errorf("%w: incident insert status %d", ErrDownstream, resp.StatusCode)
	}

	var created []struct {
		ID     string `json:"id"`
		Number string `json:"incident_number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || len(created) == 0 {
		// The row exists even if the representation did not come back.
		return Ref{ID: payload.ID, Number: inc.Number}, nil
	}
	return Ref{ID: created[0].ID, Number: created[0].Number}, nil
}

func (c *RESTClient) authorize(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}
