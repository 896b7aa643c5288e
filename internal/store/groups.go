package store

import (
	"context"
	"slices"
)

// GroupAccountCreator permite crear cuentas con el registro cerrado.
const GroupAccountCreator = "account-creator"

type groupsKey struct{}

// WithTemporaryGroups concede grupos solo durante la vida de ctx.
// Nada se escribe en la cuenta: al terminar el request el permiso desaparece.
func WithTemporaryGroups(ctx context.Context, groups ...string) context.Context {
	prev := TemporaryGroups(ctx)
	merged := make([]string, 0, len(prev)+len(groups))
	merged = append(merged, prev...)
	for _, g := range groups {
		if !slices.Contains(merged, g) {
			merged = append(merged, g)
		}
	}
	return context.WithValue(ctx, groupsKey{}, merged)
}

// TemporaryGroups devuelve los grupos concedidos en ctx (copia).
func TemporaryGroups(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	g, _ := ctx.Value(groupsKey{}).([]string)
	return slices.Clone(g)
}

// HasTemporaryGroup informa si ctx concede group.
func HasTemporaryGroup(ctx context.Context, group string) bool {
	g, _ := ctx.Value(groupsKey{}).([]string)
	return slices.Contains(g, group)
}
