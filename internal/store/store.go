// Package store define los contratos de persistencia del login social:
// LinkStore (identidad externa -> cuenta local) y UserDirectory (cuentas locales).
// Incluye implementaciones en memoria; la de PostgreSQL vive en store/pg.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("store: not found")
	ErrUsernameTaken      = errors.New("store: username already taken")
	ErrEmailTaken         = errors.New("store: email already registered")
	ErrLoginVetoed        = errors.New("store: login vetoed")
	ErrRegistrationClosed = errors.New("store: registration closed")
	ErrInvalid            = errors.New("store: invalid input")
)

// Link une una identidad externa con una cuenta local.
// Token es el token serializado del proveedor; Picture es opcional.
type Link struct {
	UserID     string
	Provider   string
	ExternalID string
	Token      string
	Picture    string
	UpdatedAt  time.Time
}

// LinkStore persiste los vínculos. Un (provider, externalID) pertenece a lo
// sumo a una cuenta: SaveLink borra el vínculo de cualquier otra cuenta
// con el mismo ID externo antes de escribir (gana el último vinculado).
type LinkStore interface {
	FindUserByExternalID(ctx context.Context, provider, externalID string) (string, error)
	GetLink(ctx context.Context, userID, provider string) (*Link, error)
	SaveLink(ctx context.Context, l Link) error
	DeleteLink(ctx context.Context, userID, provider string) error
	DeleteUser(ctx context.Context, userID string) error
}

// ActivationMode decide qué pasa con cuentas nuevas no verificadas.
type ActivationMode string

const (
	ActivationNone  ActivationMode = "none"  // activa al crear
	ActivationSelf  ActivationMode = "self"  // el usuario confirma por email
	ActivationAdmin ActivationMode = "admin" // un admin aprueba
)

// ParseActivationMode acepta none|self|admin; cualquier otro valor es none.
func ParseActivationMode(s string) ActivationMode {
	switch ActivationMode(s) {
	case ActivationSelf, ActivationAdmin:
		return ActivationMode(s)
	default:
		return ActivationNone
	}
}

type Account struct {
	ID        string
	Username  string
	Email     string
	Name      string
	Active    bool
	Blocked   bool
	CreatedAt time.Time
}

type NewAccount struct {
	Username string
	Email    string
	Name     string
	// Activate crea la cuenta ya activa, sin pasar por ActivationMode.
	Activate bool
}

// UserDirectory es el directorio de cuentas locales del host.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// Create falla con ErrUsernameTaken / ErrEmailTaken, o ErrRegistrationClosed
	// si el registro está cerrado y ctx no trae el grupo GroupAccountCreator.
	Create(ctx context.Context, in NewAccount) (*Account, error)
	// Login aplica los vetos (bloqueada, sin activar...) y abre la sesión.
	Login(ctx context.Context, userID string) error
	RegistrationOpen(ctx context.Context) bool
	ActivationMode(ctx context.Context) ActivationMode
}

// Veto puede impedir un login devolviendo un error.
type Veto func(ctx context.Context, a *Account) error
