package ticketmaster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const apiBaseURL = "https://app.ticketmaster.com/discovery/v2"

// Client talks to the Ticketmaster Discovery API to find upcoming shows for
// an artist. Discovery allows ~5 requests/second per key, hence the limiter.
type Client struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

type Event struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			DateTime time.Time `json:"dateTime"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	Embedded struct {
		Venues []Venue `json:"venues"`
	} `json:"_embedded"`
}

type Venue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Country struct {
		CountryCode string `json:"countryCode"`
	} `json:"country"`
}

type searchResponse struct {
	Embedded struct {
		Events []Event `json:"events"`
	} `json:"_embedded"`
}

// SearchEvents finds upcoming events matching an artist keyword.
func (c *Client) SearchEvents(ctx context.Context, keyword string, size int) ([]Event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("apikey", c.apiKey)
	params.Add("keyword", keyword)
	params.Add("classificationName", "music")
	params.Add("sort", "date,asc")
	params.Add("size", fmt.Sprintf("%d", size))

	req, err := http.NewRequestWithContext(ctx, "GET", apiBaseURL+"/events.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticketmaster: event search failed with status %d", resp.StatusCode)
	}

	var search searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, err
	}
	return search.Embedded.Events, nil
}
