package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryLinkStore guarda los vínculos en memoria. Útil para tests y
// storage.driver=memory.
type MemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]map[string]Link // userID -> provider -> link
	now   func() time.Time
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: map[string]map[string]Link{}, now: time.Now}
}

func (s *MemoryLinkStore) FindUserByExternalID(_ context.Context, provider, externalID string) (string, error) {
	if externalID == "" {
		return "", ErrNotFound
	}
	provider = strings.ToLower(provider)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for uid, byProv := range s.links {
		if l, ok := byProv[provider]; ok && l.ExternalID == externalID {
			return uid, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryLinkStore) GetLink(_ context.Context, userID, provider string) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[userID][strings.ToLower(provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *MemoryLinkStore) SaveLink(_ context.Context, l Link) error {
	if l.UserID == "" || l.Provider == "" || l.ExternalID == "" {
		return fmt.Errorf("%w: link needs user, provider and external id", ErrInvalid)
	}
	l.Provider = strings.ToLower(l.Provider)
	l.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	// gana el último: nadie más puede quedar con este ID externo
	for uid, byProv := range s.links {
		if uid == l.UserID {
			continue
		}
		if old, ok := byProv[l.Provider]; ok && old.ExternalID == l.ExternalID {
			delete(byProv, l.Provider)
		}
	}
	if s.links[l.UserID] == nil {
		s.links[l.UserID] = map[string]Link{}
	}
	s.links[l.UserID][l.Provider] = l
	return nil
}

func (s *MemoryLinkStore) DeleteLink(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byProv := s.links[userID]
	p := strings.ToLower(provider)
	if _, ok := byProv[p]; !ok {
		return ErrNotFound
	}
	delete(byProv, p)
	return nil
}

func (s *MemoryLinkStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.links, userID)
	s.mu.Unlock()
	return nil
}

// MemoryDirectoryOptions configura el directorio en memoria.
type MemoryDirectoryOptions struct {
	RegistrationOpen bool
	ActivationMode   ActivationMode
	Vetoes           []Veto
	// OnLogin se llama tras un login aceptado (tests).
	OnLogin func(a Account)
}

// MemoryDirectory es un UserDirectory en memoria.
type MemoryDirectory struct {
	mu      sync.RWMutex
	opts    MemoryDirectoryOptions
	byID    map[string]*memUser
	byEmail map[string]string
	byName  map[string]string
	logins  []string
	now     func() time.Time
}

type memUser struct {
	Account
	passwordHash []byte
}

func NewMemoryDirectory(opts MemoryDirectoryOptions) *MemoryDirectory {
	if opts.ActivationMode == "" {
		opts.ActivationMode = ActivationNone
	}
	return &MemoryDirectory{
		opts:    opts,
		byID:    map[string]*memUser{},
		byEmail: map[string]string{},
		byName:  map[string]string{},
		now:     time.Now,
	}
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	a := d.byID[id].Account
	return &a, nil
}

// Get devuelve la cuenta por ID.
func (d *MemoryDirectory) Get(_ context.Context, userID string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	a := u.Account
	return &a, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, in NewAccount) (*Account, error) {
	if !d.RegistrationOpen(ctx) && !HasTemporaryGroup(ctx, GroupAccountCreator) {
		return nil, ErrRegistrationClosed
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email required", ErrInvalid)
	}
	hash, err := RandomPasswordHash()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byName[username]; taken {
		return nil, ErrUsernameTaken
	}
	if _, taken := d.byEmail[email]; taken {
		return nil, ErrEmailTaken
	}
	u := &memUser{
		Account: Account{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     email,
			Name:      in.Name,
			Active:    in.Activate || d.opts.ActivationMode == ActivationNone,
			CreatedAt: d.now(),
		},
		passwordHash: hash,
	}
	d.byID[u.ID] = u
	d.byName[username] = u.ID
	d.byEmail[email] = u.ID
	a := u.Account
	return &a, nil
}

func (d *MemoryDirectory) Login(ctx context.Context, userID string) error {
	d.mu.RLock()
	u, ok := d.byID[userID]
	var a Account
	if ok {
		a = u.Account
	}
	d.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := CheckVetoes(ctx, &a, d.opts.Vetoes); err != nil {
		return err
	}
	d.mu.Lock()
	d.logins = append(d.logins, userID)
	d.mu.Unlock()
	if d.opts.OnLogin != nil {
		d.opts.OnLogin(a)
	}
	return nil
}

func (d *MemoryDirectory) RegistrationOpen(context.Context) bool { return d.opts.RegistrationOpen }

func (d *MemoryDirectory) ActivationMode(context.Context) ActivationMode {
	return d.opts.ActivationMode
}

// SetBlocked marca la cuenta como bloqueada o no.
func (d *MemoryDirectory) SetBlocked(userID string, blocked bool) {
	d.mu.Lock()
	if u, ok := d.byID[userID]; ok {
		u.Blocked = blocked
	}
	d.mu.Unlock()
}

// Activate activa una cuenta pendiente.
func (d *MemoryDirectory) Activate(userID string) {
	d.mu.Lock()
	if u, ok := d.byID[userID]; ok {
		u.Active = true
	}
	d.mu.Unlock()
}

// Logins devuelve los IDs que iniciaron sesión, en orden.
func (d *MemoryDirectory) Logins() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.logins...)
}

// CheckVetoes aplica los vetos fijos (bloqueada, sin activar) y los extra.
func CheckVetoes(ctx context.Context, a *Account, vetoes []Veto) error {
	if a.Blocked {
		return fmt.Errorf("%w: account blocked", ErrLoginVetoed)
	}
	if !a.Active {
		return fmt.Errorf("%w: account not activated", ErrLoginVetoed)
	}
	for _, v := range vetoes {
		if err := v(ctx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrLoginVetoed, err)
		}
	}
	return nil
}

// RandomPasswordHash genera un hash bcrypt de una contraseña aleatoria: las
// cuentas creadas por login social no tienen contraseña conocida.
func RandomPasswordHash() ([]byte, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(b[:])), bcrypt.DefaultCost)
}
