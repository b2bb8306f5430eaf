// internal/model/models.go
package model

import (
	"encoding/json"
	"time"
)

// Collection names. Each one is a table in the document store.
const (
	CollectionIntegration   = "github_integration"
	CollectionOrganizations = "github_organizations"
	CollectionRepos         = "github_repos"
	CollectionCommits       = "github_commits"
	CollectionPulls         = "github_pulls"
	CollectionIssues        = "github_issues"
	CollectionChangelogs    = "github_changelogs"
	CollectionUsers         = "github_users"
)

// Document field names shared by the syncer, the integration manager and the query layer.
const (
	FieldID                = "_id"
	FieldUserID            = "user_id"
	FieldIntegrationUserID = "integration_user_id"
	FieldRepository        = "repository"
	FieldOrganization      = "organization"
	FieldLanguage          = "language"
	FieldPrimaryLanguage   = "primary_language"
	FieldLastSync          = "last_sync"
	FieldIntegrationStatus = "integration_status"
)

// EntityCollections lists the seven mirrored collections in their canonical order.
// Every document in them carries the integration_user_id tag.
func EntityCollections() []string {
	return []string{
		CollectionOrganizations,
		CollectionRepos,
		CollectionCommits,
		CollectionPulls,
		CollectionIssues,
		CollectionChangelogs,
		CollectionUsers,
	}
}

// Document is a schemaless record as stored in a collection.
type Document map[string]any

// IntegrationStatus is the connection state of an Integration.
type IntegrationStatus string

const (
	StatusNotConnected IntegrationStatus = "not_connected"
	StatusActive       IntegrationStatus = "active"
)

// Profile is the cached GitHub profile snapshot of a connected account.
type Profile struct {
	ID          int64   `json:"id"`
	Login       string  `json:"login"`
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	AvatarURL   *string `json:"avatar_url"`
	HTMLURL     *string `json:"html_url"`
	Type        *string `json:"type"`
	Company     *string `json:"company"`
	Location    *string `json:"location"`
	Bio         *string `json:"bio"`
	PublicRepos *int    `json:"public_repos"`
	Followers   *int    `json:"followers"`
	Following   *int    `json:"following"`
	CreatedAt   *string `json:"created_at"`
	UpdatedAt   *string `json:"updated_at"`
}

// Integration is the single identity record kept per connected GitHub account.
type Integration struct {
	UserID            int64             `json:"user_id"`
	AccessToken       string            `json:"access_token"`
	UserInfo          Profile           `json:"user_info"`
	IntegrationStatus IntegrationStatus `json:"integration_status"`
	ConnectedAt       time.Time         `json:"connected_at"`
	LastSync          *time.Time        `json:"last_sync"`
}

// SyncStats counts the documents written by one resync, per entity type.
type SyncStats struct {
	Organizations int `json:"organizations"`
	Repositories  int `json:"repositories"`
	Commits       int `json:"commits"`
	Pulls         int `json:"pulls"`
	Issues        int `json:"issues"`
	Changelogs    int `json:"changelogs"`
	Members       int `json:"users"`
}

// ToDocument encodes v through its JSON representation.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes doc into v through its JSON representation.
func FromDocument(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
