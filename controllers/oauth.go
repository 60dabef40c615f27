package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/models"
)

// Provider API locations. Tests point these at local servers.
var (
	githubAPIBase     = "https://api.github.com"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	redirect := fmt.Sprintf("%s/auth/oauth/%s/callback", strings.TrimRight(cfg.BaseURL, "/"), provider)
	switch provider {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// fetchIdentity asks the provider who the token belongs to. client carries the token.
func fetchIdentity(ctx context.Context, provider string, client *http.Client) (*models.ExternalIdentity, error) {
	switch provider {
	case "github":
		return fetchGitHubUser(ctx, client)
	case "google":
		return fetchGoogleUser(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*models.ExternalIdentity, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, githubAPIBase+"/user", &payload); err != nil {
		return nil, err
	}
	email := payload.Email
	if email == "" {
		// private addresses are only listed on /user/emails
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, githubAPIBase+"/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}
	return &models.ExternalIdentity{
		Provider:   "github",
		ProviderID: strconv.FormatInt(payload.ID, 10),
		Login:      payload.Login,
		Email:      email,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*models.ExternalIdentity, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := getJSON(ctx, client, googleUserInfoURL, &payload); err != nil {
		return nil, err
	}
	email := ""
	if payload.VerifiedEmail {
		email = payload.Email
	}
	return &models.ExternalIdentity{
		Provider:   "google",
		ProviderID: payload.ID,
		Login:      payload.Email,
		Email:      email,
	}, nil
}
