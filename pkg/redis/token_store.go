package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("token not found")

const tokenKeyPrefix = "token:"

// TokenInfo holds a user's Spotify OAuth tokens.
type TokenInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore keeps OAuth tokens in Redis, keyed by app user id.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) StoreTokens(ctx context.Context, userID string, token *TokenInfo) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.client.Set(ctx, tokenKeyPrefix+userID, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, userID string) (*TokenInfo, error) {
	payload, err := s.client.Get(ctx, tokenKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token TokenInfo
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *TokenStore) DeleteTokens(ctx context.Context, userID string) error {
	return s.client.Del(ctx, tokenKeyPrefix+userID).Err()
}

// RefreshAccessToken swaps in a new access token, keeping the refresh token.
func (s *TokenStore) RefreshAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	token, err := s.GetTokens(ctx, userID)
	if err != nil {
		return err
	}

	token.AccessToken = accessToken
	token.ExpiresAt = expiresAt
	return s.StoreTokens(ctx, userID, token)
}
