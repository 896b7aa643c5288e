package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/socialauth/internal/security/secretbox"
)

// SealedLinkStore cifra Link.Token antes de delegar y lo descifra al leer.
// Los tokens guardados en claro (antes de habilitar el cifrado) se devuelven
// tal cual.
type SealedLinkStore struct {
	LinkStore
	box *secretbox.Box
}

func NewSealedLinkStore(inner LinkStore, box *secretbox.Box) *SealedLinkStore {
	return &SealedLinkStore{LinkStore: inner, box: box}
}

func (s *SealedLinkStore) SaveLink(ctx context.Context, l Link) error {
	if l.Token != "" {
		ct, err := s.box.Seal(l.Token)
		if err != nil {
			return fmt.Errorf("store: seal token: %w", err)
		}
		l.Token = ct
	}
	return s.LinkStore.SaveLink(ctx, l)
}

func (s *SealedLinkStore) GetLink(ctx context.Context, userID, provider string) (*Link, error) {
	l, err := s.LinkStore.GetLink(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if secretbox.IsSealed(l.Token) {
		pt, err := s.box.Open(l.Token)
		if err != nil {
			return nil, fmt.Errorf("store: open token: %w", err)
		}
		l.Token = pt
	}
	return l, nil
}
