// Package builtin registers every provider shipped with socialauth.
package builtin

import (
	"github.com/dropDatabas3/socialauth/internal/providers"
	"github.com/dropDatabas3/socialauth/internal/providers/apple"
	"github.com/dropDatabas3/socialauth/internal/providers/discord"
	"github.com/dropDatabas3/socialauth/internal/providers/facebook"
	"github.com/dropDatabas3/socialauth/internal/providers/github"
	"github.com/dropDatabas3/socialauth/internal/providers/google"
	"github.com/dropDatabas3/socialauth/internal/providers/linkedin"
	"github.com/dropDatabas3/socialauth/internal/providers/microsoft"
	"github.com/dropDatabas3/socialauth/internal/providers/twitter"
)

// Register adds all builtin providers to r.
func Register(r *providers.Registry) {
	r.Register(google.New())
	r.Register(facebook.New())
	r.Register(github.New())
	r.Register(microsoft.New())
	r.Register(linkedin.New())
	r.Register(discord.New())
	r.Register(apple.New())
	r.Register(twitter.New())
}

// NewRegistry returns a registry with every builtin provider.
func NewRegistry() *providers.Registry {
	r := providers.NewRegistry()
	Register(r)
	return r
}
