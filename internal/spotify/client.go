package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	accountsBaseURL = "https://accounts.spotify.com"
	apiBaseURL      = "https://api.spotify.com/v1"
)

// Client talks to the Spotify Web API: OAuth for identity and artist top
// tracks for seeding setlist suggestion candidates. Requests are rate
// limited so catalog refresh bursts stay inside Spotify's quota.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
	}
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	ExpiresAt    time.Time
}

func (tr *TokenResponse) addExpiresAt() {
	tr.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Popularity int    `json:"popularity"`
}

type topTracksResponse struct {
	Tracks []Track `json:"tracks"`
}

type ArtistResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Followers struct {
		Total int `json:"total"`
	} `json:"followers"`
	Genres []string `json:"genres"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (c *Client) GetAuthURL(state string) string {
	params := url.Values{}
	params.Add("client_id", c.clientID)
	params.Add("response_type", "code")
	params.Add("redirect_uri", c.redirectURI)
	params.Add("scope", "user-read-private user-read-email user-top-read")
	params.Add("state", state)

	return accountsBaseURL + "/authorize?" + params.Encode()
}

func (c *Client) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)

	return c.doTokenRequest(ctx, data)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return c.doTokenRequest(ctx, data)
}

func (c *Client) doTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", accountsBaseURL+"/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify: token request failed with status %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	token.addExpiresAt()
	return &token, nil
}

// GetUser fetches the authenticated user's profile.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.doAPIRequest(ctx, accessToken, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetArtist fetches an artist's catalog profile by Spotify id.
func (c *Client) GetArtist(ctx context.Context, accessToken, artistID string) (*ArtistResult, error) {
	var artist ArtistResult
	if err := c.doAPIRequest(ctx, accessToken, "/artists/"+artistID, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// GetArtistTopTracks fetches the artist's most popular tracks, the seed pool
// for setlist suggestion candidates.
func (c *Client) GetArtistTopTracks(ctx context.Context, accessToken, artistID string) ([]Track, error) {
	var out topTracksResponse
	if err := c.doAPIRequest(ctx, accessToken, "/artists/"+artistID+"/top-tracks?market=US", &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

func (c *Client) doAPIRequest(ctx context.Context, accessToken, path string, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spotify: request %s failed with status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
