// internal/integration/manager.go
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/model"
	"github-integration/internal/store"
)

// Status is the externally visible state of an integration.
type Status struct {
	Status      model.IntegrationStatus `json:"status"`
	Message     string                  `json:"message,omitempty"`
	User        *model.Profile          `json:"user,omitempty"`
	ConnectedAt *time.Time              `json:"connected_at,omitempty"`
	LastSync    *time.Time              `json:"last_sync"`
}

// Manager keeps the single identity record per connected GitHub account.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over the given store.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	return &Manager{store: s, logger: logger, now: time.Now}
}

func byUser(userID int64) *store.Predicate {
	return store.Eq(model.FieldUserID, userID)
}

// Get loads the identity record for userID.
func (m *Manager) Get(ctx context.Context, userID int64) (*model.Integration, error) {
	doc, err := m.store.FindOne(ctx, model.CollectionIntegration, byUser(userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, custom_errors.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", err)
	}
	var in model.Integration
	if err := model.FromDocument(doc, &in); err != nil {
		return nil, fmt.Errorf("decode integration: %w", err)
	}
	return &in, nil
}

// Status reports the connection state; an absent record is not_connected.
func (m *Manager) Status(ctx context.Context, userID int64) (*Status, error) {
	in, err := m.Get(ctx, userID)
	if errors.Is(err, custom_errors.ErrIntegrationNotFound) {
		return &Status{Status: model.StatusNotConnected, Message: "No GitHub integration found"}, nil
	}
	if err != nil {
		return nil, err
	}
	connectedAt := in.ConnectedAt
	return &Status{
		Status:      in.IntegrationStatus,
		User:        &in.UserInfo,
		ConnectedAt: &connectedAt,
		LastSync:    in.LastSync,
	}, nil
}

// Credential returns the stored access token for userID.
func (m *Manager) Credential(ctx context.Context, userID int64) (string, error) {
	in, err := m.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if in.AccessToken == "" {
		return "", custom_errors.ErrNoAccessToken
	}
	return in.AccessToken, nil
}

// Connect writes the identity record after a successful authorization,
// replacing any previous record for the same account.
func (m *Manager) Connect(ctx context.Context, token string, profile model.Profile) (*model.Integration, error) {
	in := &model.Integration{
		UserID:            profile.ID,
		AccessToken:       token,
		UserInfo:          profile,
		IntegrationStatus: model.StatusActive,
		ConnectedAt:       m.now().UTC(),
	}
	doc, err := model.ToDocument(in)
	if err != nil {
		return nil, fmt.Errorf("encode integration: %w", err)
	}

	updated, err := m.store.UpdateOne(ctx, model.CollectionIntegration, byUser(in.UserID), doc)
	if err != nil {
		return nil, fmt.Errorf("update integration: %w", err)
	}
	if !updated {
		if _, err := m.store.InsertOne(ctx, model.CollectionIntegration, doc); err != nil {
			return nil, fmt.Errorf("insert integration: %w", err)
		}
	}
	m.logger.Info("GitHub integration connected", "user_id", in.UserID, "login", profile.Login, "replaced", updated)
	return in, nil
}

// MarkSynced records the completion time of a resync.
func (m *Manager) MarkSynced(ctx context.Context, userID int64, at time.Time) error {
	ok, err := m.store.UpdateOne(ctx, model.CollectionIntegration, byUser(userID), model.Document{
		model.FieldLastSync: at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("update last sync: %w", err)
	}
	if !ok {
		return custom_errors.ErrIntegrationNotFound
	}
	return nil
}

// Remove deletes the identity record and every document tagged with it.
func (m *Manager) Remove(ctx context.Context, userID int64) error {
	if _, err := m.Get(ctx, userID); err != nil {
		return err
	}
	if _, err := m.store.DeleteMany(ctx, model.CollectionIntegration, byUser(userID)); err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	removed, err := ClearEntities(ctx, m.store, userID)
	if err != nil {
		return err
	}
	m.logger.Info("GitHub integration removed", "user_id", userID, "documents_removed", removed)
	return nil
}

// ListActive returns every integration with an active status.
func (m *Manager) ListActive(ctx context.Context) ([]model.Integration, error) {
	docs, err := m.store.Find(ctx, model.CollectionIntegration,
		store.Eq(model.FieldIntegrationStatus, string(model.StatusActive)), store.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	out := make([]model.Integration, 0, len(docs))
	for _, doc := range docs {
		var in model.Integration
		if err := model.FromDocument(doc, &in); err != nil {
			return nil, fmt.Errorf("decode integration: %w", err)
		}
		out = append(out, in)
	}
	return out, nil
}

// ClearEntities deletes every document tagged with userID from the seven entity collections.
func ClearEntities(ctx context.Context, s store.Store, userID int64) (int64, error) {
	var total int64
	for _, collection := range model.EntityCollections() {
		n, err := s.DeleteMany(ctx, collection, store.Eq(model.FieldIntegrationUserID, userID))
		if err != nil {
			return total, fmt.Errorf("clear %s: %w", collection, err)
		}
		total += n
	}
	return total, nil
}
