package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dropDatabas3/socialauth/internal/store"
)

const (
	constraintUsername = "app_user_username_key"
	constraintEmail    = "app_user_email_key"
)

// DirectoryOptions configura el directorio PostgreSQL.
type DirectoryOptions struct {
	RegistrationOpen bool
	ActivationMode   store.ActivationMode
	Vetoes           []store.Veto
}

// Directory implementa store.UserDirectory sobre la tabla app_user.
type Directory struct {
	db   DB
	opts DirectoryOptions
}

var _ store.UserDirectory = (*Directory)(nil)

func NewDirectory(db DB, opts DirectoryOptions) *Directory {
	if opts.ActivationMode == "" {
		opts.ActivationMode = store.ActivationNone
	}
	return &Directory{db: db, opts: opts}
}

const selectAccount = `SELECT id, username, email, name, active, blocked, created_at FROM app_user `

func (d *Directory) scanOne(ctx context.Context, where string, arg any) (*store.Account, error) {
	var a store.Account
	err := d.db.QueryRow(ctx, selectAccount+where, arg).Scan(
		&a.ID, &a.Username, &a.Email, &a.Name, &a.Active, &a.Blocked, &a.CreatedAt,
	)
	if isNoRows(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: load account: %w", err)
	}
	return &a, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*store.Account, error) {
	return d.scanOne(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (d *Directory) Get(ctx context.Context, userID string) (*store.Account, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, store.ErrNotFound
	}
	return d.scanOne(ctx, `WHERE id = $1`, userID)
}

func (d *Directory) Create(ctx context.Context, in store.NewAccount) (*store.Account, error) {
	if !d.opts.RegistrationOpen && !store.HasTemporaryGroup(ctx, store.GroupAccountCreator) {
		return nil, store.ErrRegistrationClosed
	}
	a := store.Account{
		ID:       uuid.NewString(),
		Username: strings.ToLower(strings.TrimSpace(in.Username)),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Name:     in.Name,
		Active:   in.Activate || d.opts.ActivationMode == store.ActivationNone,
	}
	if a.Username == "" || a.Email == "" {
		return nil, fmt.Errorf("%w: username and email required", store.ErrInvalid)
	}
	hash, err := store.RandomPasswordHash()
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow(ctx, `
		INSERT INTO app_user (id, username, email, name, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.Username, a.Email, a.Name, hash, a.Active,
	).Scan(&a.CreatedAt)
	if err != nil {
		return nil, mapCreateError(err)
	}
	return &a, nil
}

// mapCreateError traduce las violaciones de unicidad a errores del dominio.
func mapCreateError(err error) error {
	if c, ok := uniqueViolation(err); ok {
		switch c {
		case constraintUsername:
			return store.ErrUsernameTaken
		case constraintEmail:
			return store.ErrEmailTaken
		}
	}
	return fmt.Errorf("pg: create account: %w", err)
}

func (d *Directory) Login(ctx context.Context, userID string) error {
	a, err := d.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := store.CheckVetoes(ctx, a, d.opts.Vetoes); err != nil {
		return err
	}
	if _, err := d.db.Exec(ctx, `UPDATE app_user SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("pg: record login: %w", err)
	}
	return nil
}

func (d *Directory) RegistrationOpen(context.Context) bool { return d.opts.RegistrationOpen }

func (d *Directory) ActivationMode(context.Context) store.ActivationMode {
	return d.opts.ActivationMode
}

// Activate marca como activa una cuenta pendiente.
func (d *Directory) Activate(ctx context.Context, userID string) error {
	tag, err := d.db.Exec(ctx, `UPDATE app_user SET active = TRUE WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("pg: activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete borra la cuenta; sus filas de perfil caen por cascada.
func (d *Directory) Delete(ctx context.Context, userID string) error {
	_, err := d.db.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, userID)
	return err
}
