// internal/github/profile.go
package github

import (
	"context"
	"time"

	"github.com/google/go-github/v62/github"

	"github-integration/internal/model"
)

// ToProfile snapshots the fields of a GitHub user kept on the identity record.
func ToProfile(u *github.User) model.Profile {
	return model.Profile{
		ID:          u.GetID(),
		Login:       u.GetLogin(),
		Name:        u.Name,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		HTMLURL:     u.HTMLURL,
		Type:        u.Type,
		Company:     u.Company,
		Location:    u.Location,
		Bio:         u.Bio,
		PublicRepos: u.PublicRepos,
		Followers:   u.Followers,
		Following:   u.Following,
		CreatedAt:   formatTimestamp(u.CreatedAt),
		UpdatedAt:   formatTimestamp(u.UpdatedAt),
	}
}

func formatTimestamp(ts *github.Timestamp) *string {
	if ts == nil {
		return nil
	}
	s := ts.UTC().Format(time.RFC3339)
	return &s
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (model.Profile, error) {
	u, err := c.GetUser(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	return ToProfile(u), nil
}
