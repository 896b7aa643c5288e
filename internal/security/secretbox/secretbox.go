// Package secretbox cifra valores chicos (tokens de proveedor) con AES-256-GCM.
// Formato: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12  // AES-GCM nonce size recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

var ErrFormat = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box a partir de 32 bytes de clave.
func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), requiredKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey acepta la clave en base64 (con o sin padding) o hex.
// Generar con: openssl rand -base64 32
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(s) == 2*requiredKeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: la clave debe decodificar a %d bytes (base64 o hex)", requiredKeyLength)
}

// Seal cifra plainText.
func (b *Box) Seal(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra lo producido por Seal; falla si fue alterado.
func (b *Box) Open(cipherText string) (string, error) {
	nonce, ct, ok := strings.Cut(cipherText, sep)
	if !ok {
		return "", ErrFormat
	}
	nb, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	cb, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nb) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nb))
	}
	pt, err := b.aead.Open(nil, nb, cb, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// IsSealed indica si s tiene la forma de un valor cifrado (migración de
// tokens guardados antes de habilitar el cifrado).
func IsSealed(s string) bool {
	nonce, ct, ok := strings.Cut(s, sep)
	if !ok || ct == "" {
		return false
	}
	nb, err := base64.StdEncoding.DecodeString(nonce)
	return err == nil && len(nb) == nonceSizeGCM
}
