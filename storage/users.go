package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"wisher-api/domain"
)

// UserProfile is the stored account record. PasswordHash is a bcrypt digest
// and never leaves this package in API responses.
type UserProfile struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
}

// User converts the profile to its public identity snapshot.
func (p UserProfile) User() domain.User {
	return domain.User{ID: p.ID, Email: p.Email, Name: p.Name}
}

type userEntity struct {
	aztables.Entity
	Email        string `json:"Email"`
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
	Disabled     bool   `json:"Disabled"`
	CreatedUnix  int64  `json:"CreatedUnix"`
}

func (e userEntity) toProfile() UserProfile {
	return UserProfile{
		ID:           e.RowKey,
		Email:        e.Email,
		Name:         e.Name,
		PasswordHash: e.PasswordHash,
		Disabled:     e.Disabled,
		CreatedAt:    time.Unix(e.CreatedUnix, 0).UTC(),
	}
}

// PutUserProfile writes the profile record keyed by the user id.
func (s *Store) PutUserProfile(ctx context.Context, p UserProfile) error {
	ent := userEntity{
		Entity:       aztables.Entity{PartitionKey: p.ID, RowKey: p.ID},
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Disabled:     p.Disabled,
		CreatedUnix:  p.CreatedAt.Unix(),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.userTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return mapTableError(err)
}

// GetUserProfile fetches a profile by user id; absent records yield
// found=false with a nil error.
func (s *Store) GetUserProfile(ctx context.Context, id string) (UserProfile, bool, error) {
	ent, err := s.userTable.GetEntity(ctx, id, id, nil)
	if err != nil {
		err = mapTableError(err)
		if isNotFound(err) {
			return UserProfile{}, false, nil
		}
		return UserProfile{}, false, err
	}
	var raw userEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return UserProfile{}, false, err
	}
	return raw.toProfile(), true, nil
}

// GetUserByEmail looks a profile up by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserProfile, bool, error) {
	filter := "Email eq '" + escapeFilterValue(email) + "'"
	top := int32(1)
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
		Top:    &top,
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return UserProfile{}, false, mapTableError(err)
		}
		for _, raw := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return UserProfile{}, false, err
			}
			return ent.toProfile(), true, nil
		}
	}
	return UserProfile{}, false, nil
}
