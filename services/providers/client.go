package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"golang.org/x/oauth2"
)

// TokenData is what a provider returns from a successful refresh.
type TokenData struct {
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
}

// Client exchanges a refresh secret for new credentials.
type Client interface {
	RefreshToken(ctx context.Context, refreshSecret string) (*TokenData, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, refreshSecret string) (*TokenData, error)

func (f ClientFunc) RefreshToken(ctx context.Context, refreshSecret string) (*TokenData, error) {
	return f(ctx, refreshSecret)
}

// OAuthClient refreshes tokens against an OAuth 2.0 token endpoint.
type OAuthClient struct {
	name       string
	config     *oauth2.Config
	pacer      *Pacer
	httpClient *http.Client
}

type ClientOption func(*OAuthClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OAuthClient) {
		o.httpClient = c
	}
}

func WithPacer(p *Pacer) ClientOption {
	return func(o *OAuthClient) {
		o.pacer = p
	}
}

func NewOAuthClient(def Definition, opts ...ClientOption) *OAuthClient {
	cfg := &oauth2.Config{
		ClientID:     def.ClientID,
		ClientSecret: def.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   def.AuthURL,
			TokenURL:  def.TokenURL,
			AuthStyle: authStyle(def.AuthStyle),
		},
		Scopes: def.Scopes,
	}

	c := &OAuthClient{name: def.Name, config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func authStyle(s string) oauth2.AuthStyle {
	switch s {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

func (c *OAuthClient) RefreshToken(ctx context.Context, refreshSecret string) (*TokenData, error) {
	if refreshSecret == "" {
		return nil, storageerrors.New(storageerrors.InvalidCredentials, c.name, errors.New("no refresh token stored"))
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			var se *storageerrors.Error
			if errors.As(err, &se) && se.Provider == "" {
				se.Provider = c.name
			}
			return nil, err
		}
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	// An already expired token forces the source to hit the token endpoint.
	expired := &oauth2.Token{RefreshToken: refreshSecret, Expiry: time.Unix(1, 0)}
	tok, err := c.config.TokenSource(ctx, expired).Token()
	if err != nil {
		err = fmt.Errorf("%s token refresh: %w", c.name, err)
		if wait := c.observeFailure(err); wait > 0 {
			return nil, &storageerrors.Error{
				Type:       storageerrors.APIQuotaExceeded,
				Provider:   c.name,
				Err:        err,
				Attempts:   1,
				RetryAfter: wait,
			}
		}
		return nil, err
	}

	data := &TokenData{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		data.ExpiresAt = &expiry
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		data.Scopes = strings.Fields(scope)
	}

	return data, nil
}

// observeFailure pauses the pacer when the provider rate limits us and
// returns the pause.
func (c *OAuthClient) observeFailure(err error) time.Duration {
	var re *oauth2.RetrieveError
	if c.pacer == nil || !errors.As(err, &re) || re.Response == nil {
		return 0
	}
	if re.Response.StatusCode != http.StatusTooManyRequests {
		return 0
	}

	var wait time.Duration
	if secs, convErr := strconv.Atoi(re.Response.Header.Get("Retry-After")); convErr == nil {
		wait = time.Duration(secs) * time.Second
	}
	return c.pacer.Pause(wait)
}

// unsupportedClient backs providers authenticated with static keys.
type unsupportedClient struct {
	name string
}

func (u unsupportedClient) RefreshToken(context.Context, string) (*TokenData, error) {
	return nil, storageerrors.New(storageerrors.ProviderNotConfigured, u.name, storageerrors.ErrRefreshNotSupported)
}
