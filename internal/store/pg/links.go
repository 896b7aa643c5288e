package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/socialauth/internal/store"
)

// LinkStore guarda cada vínculo como hasta tres filas de user_profile:
// socialauth.<p>.userid (ID externo), .token y .picture.
type LinkStore struct{ db DB }

var _ store.LinkStore = (*LinkStore)(nil)

func NewLinkStore(db DB) *LinkStore { return &LinkStore{db: db} }

func (s *LinkStore) FindUserByExternalID(ctx context.Context, provider, externalID string) (string, error) {
	if externalID == "" {
		return "", store.ErrNotFound
	}
	const q = `
		SELECT user_id FROM user_profile
		WHERE profile_key = $1 AND profile_value = $2
		ORDER BY updated_at DESC
		LIMIT 1`
	var uid string
	err := s.db.QueryRow(ctx, q, store.LinkKey(provider, store.FieldUserID), externalID).Scan(&uid)
	if isNoRows(err) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pg: find link: %w", err)
	}
	return uid, nil
}

func (s *LinkStore) GetLink(ctx context.Context, userID, provider string) (*store.Link, error) {
	const q = `
		SELECT profile_key, profile_value, updated_at FROM user_profile
		WHERE user_id = $1 AND starts_with(profile_key, $2)`
	rows, err := s.db.Query(ctx, q, userID, store.LinkPrefix(provider))
	if err != nil {
		return nil, fmt.Errorf("pg: get link: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	var updated time.Time
	for rows.Next() {
		var key, val string
		var at time.Time
		if err := rows.Scan(&key, &val, &at); err != nil {
			return nil, err
		}
		values[key] = val
		if at.After(updated) {
			updated = at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return linkFromRows(userID, provider, values, updated)
}

// SaveLink corre en una transacción: primero quita el ID externo a cualquier
// otra cuenta (gana el último vinculado), luego reemplaza las filas propias.
func (s *LinkStore) SaveLink(ctx context.Context, l store.Link) error {
	if l.UserID == "" || l.Provider == "" || l.ExternalID == "" {
		return fmt.Errorf("%w: link needs user, provider and external id", store.ErrInvalid)
	}
	prefix := store.LinkPrefix(l.Provider)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM user_profile
		WHERE starts_with(profile_key, $1)
		  AND user_id IN (
			SELECT user_id FROM user_profile
			WHERE profile_key = $2 AND profile_value = $3 AND user_id <> $4
		  )`,
		prefix, store.LinkKey(l.Provider, store.FieldUserID), l.ExternalID, l.UserID)
	if err != nil {
		return fmt.Errorf("pg: release external id: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM user_profile WHERE user_id = $1 AND starts_with(profile_key, $2)`,
		l.UserID, prefix); err != nil {
		return fmt.Errorf("pg: clear link: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range linkRows(l) {
		batch.Queue(`
			INSERT INTO user_profile (user_id, profile_key, profile_value, ordering, updated_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			l.UserID, r.key, r.value, r.ordering)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pg: write link: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *LinkStore) DeleteLink(ctx context.Context, userID, provider string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM user_profile WHERE user_id = $1 AND starts_with(profile_key, $2)`,
		userID, store.LinkPrefix(provider))
	if err != nil {
		return fmt.Errorf("pg: delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteUser borra todos los vínculos sociales de la cuenta; el resto del
// perfil no se toca.
func (s *LinkStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM user_profile WHERE user_id = $1 AND starts_with(profile_key, $2)`,
		userID, store.Namespace+".")
	if err != nil {
		return fmt.Errorf("pg: delete user links: %w", err)
	}
	return nil
}

type profileRow struct {
	key      string
	value    string
	ordering int
}

// linkRows arma las filas de un vínculo; picture vacío no se escribe.
func linkRows(l store.Link) []profileRow {
	rows := []profileRow{
		{key: store.LinkKey(l.Provider, store.FieldUserID), value: l.ExternalID},
		{key: store.LinkKey(l.Provider, store.FieldToken), value: l.Token, ordering: 1},
	}
	if l.Picture != "" {
		rows = append(rows, profileRow{key: store.LinkKey(l.Provider, store.FieldPicture), value: l.Picture, ordering: 2})
	}
	return rows
}

// linkFromRows es la inversa de linkRows.
func linkFromRows(userID, provider string, values map[string]string, updated time.Time) (*store.Link, error) {
	ext := values[store.LinkKey(provider, store.FieldUserID)]
	if ext == "" {
		return nil, store.ErrNotFound
	}
	return &store.Link{
		UserID:     userID,
		Provider:   strings.ToLower(provider),
		ExternalID: ext,
		Token:      values[store.LinkKey(provider, store.FieldToken)],
		Picture:    values[store.LinkKey(provider, store.FieldPicture)],
		UpdatedAt:  updated,
	}, nil
}
