package store

import "strings"

// Namespace prefija todas las claves de perfil del login social.
const Namespace = "socialauth"

const (
	FieldUserID  = "userid"
	FieldToken   = "token"
	FieldPicture = "picture"
)

// LinkFields son los campos que forman un vínculo, en orden.
var LinkFields = []string{FieldUserID, FieldToken, FieldPicture}

// LinkKey arma "socialauth.<provider>.<field>".
func LinkKey(provider, field string) string {
	return Namespace + "." + strings.ToLower(provider) + "." + field
}

// LinkPrefix es el prefijo común de todas las claves de un proveedor.
func LinkPrefix(provider string) string {
	return Namespace + "." + strings.ToLower(provider) + "."
}

// SplitLinkKey devuelve provider y field de una clave, ok=false si no es nuestra.
func SplitLinkKey(key string) (provider, field string, ok bool) {
	rest, found := strings.CutPrefix(key, Namespace+".")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
