package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/socialauth/internal/login"
	"github.com/dropDatabas3/socialauth/internal/security/secretbox"
	"github.com/dropDatabas3/socialauth/internal/store"
)

// EnvPrefix prefija todas las variables de entorno que pisan el YAML.
const EnvPrefix = "SOCIALAUTH_"

// KnownProviders son los nombres aceptados bajo providers:.
var KnownProviders = []string{"apple", "discord", "facebook", "github", "google", "linkedin", "microsoft", "twitter"}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// Name aparece en los emails de activación
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr    string `yaml:"addr"`
		BaseURL string `yaml:"base_url"` // arma los redirect_uri: <base_url>/auth/<provider>/callback
		Cookie  struct {
			Secure bool   `yaml:"secure"`
			TTL    string `yaml:"ttl"`
		} `yaml:"cookie"`
		// ReturnHosts limita los destinos de ?return= (vacío = solo paths relativos)
		ReturnHosts []string `yaml:"return_hosts"`
		// TrustProxy toma la IP de X-Forwarded-For (solo detrás de un proxy propio)
		TrustProxy bool `yaml:"trust_proxy"`
		RateLimit  struct {
			Max    int    `yaml:"max"` // intentos por ventana e IP; 0 = sin límite
			Window string `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		// TokenKey (base64/hex, 32 bytes) cifra los tokens guardados en los vínculos
		TokenKey string `yaml:"token_key"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Session struct {
		Driver string `yaml:"driver"` // memory | redis
		TTL    string `yaml:"ttl"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		TLS      string `yaml:"tls"` // auto | starttls | ssl | none
	} `yaml:"smtp"`

	Registration struct {
		Open              bool   `yaml:"open"`
		RequireActivation string `yaml:"require_activation"` // none | self | admin
		AdminEmail        string `yaml:"admin_email"`        // destino de los avisos en modo admin
	} `yaml:"registration"`

	Providers map[string]ProviderSettings `yaml:"providers"`
}

// ProviderSettings es la configuración de un proveedor. Los flags de
// política son punteros para distinguir "no seteado" de false.
type ProviderSettings struct {
	Enabled      bool              `yaml:"enabled"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	RedirectURL  string            `yaml:"redirect_url"` // si vacío => <server.base_url>/auth/<name>/callback
	Scopes       []string          `yaml:"scopes"`
	Params       map[string]string `yaml:"params"` // extras de la URL de autorización
	UseRefresh   bool              `yaml:"use_refresh"`
	Extra        map[string]string `yaml:"extra"` // team_id, key_id, tenant, legacy_live...

	// Apple: ruta al .p8; se carga en Extra["private_key"].
	PrivateKeyPath string `yaml:"private_key_path"`

	CanLoginUnlinked    *bool `yaml:"can_login_unlinked"`
	CanCreateNewUsers   *bool `yaml:"can_create_new_users"`
	CanCreateAlways     *bool `yaml:"can_create_always"`
	CanBypassValidation *bool `yaml:"can_bypass_validation"`
}

// Policy arma la política inmutable de un intento, con los defaults de
// login.DefaultPolicy para lo que no esté seteado.
func (p ProviderSettings) Policy() login.Policy {
	pol := login.DefaultPolicy()
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&pol.CanLoginUnlinked, p.CanLoginUnlinked)
	set(&pol.CanCreateNewUsers, p.CanCreateNewUsers)
	set(&pol.CanCreateAlways, p.CanCreateAlways)
	set(&pol.CanBypassValidation, p.CanBypassValidation)
	return pol
}

// ParamKeys devuelve las claves de Params ordenadas (el orden de los extras
// en la URL es determinístico).
func (p ProviderSettings) ParamKeys() []string {
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RedirectFor resuelve el redirect_uri de name.
func (c *Config) RedirectFor(name string) string {
	if p, ok := c.Providers[name]; ok && p.RedirectURL != "" {
		return p.RedirectURL
	}
	return strings.TrimRight(c.Server.BaseURL, "/") + "/auth/" + name + "/callback"
}

// Enabled devuelve los nombres de proveedores habilitados, ordenados.
func (c *Config) Enabled() []string {
	var out []string
	for name, p := range c.Providers {
		if p.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Config) ActivationMode() store.ActivationMode {
	return store.ParseActivationMode(c.Registration.RequireActivation)
}

func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.TTL)
	return d
}

func (c *Config) RateLimitWindow() time.Duration {
	d, _ := time.ParseDuration(c.Server.RateLimit.Window)
	return d
}

func (c *Config) ConnMaxLifetime() time.Duration {
	d, _ := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime)
	return d
}

// Load lee path (puede ser "" para usar solo defaults + env), aplica env y
// defaults, y valida.
func Load(path string) (*Config, error) {
	var b []byte
	if path != "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	return Parse(b)
}

// Parse es Load sobre bytes ya leídos.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.loadKeyFiles(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "socialauth"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost" + c.Server.Addr
	}
	if c.Server.RateLimit.Window == "" {
		c.Server.RateLimit.Window = "1m"
	}
	if c.Server.Cookie.TTL == "" {
		c.Server.Cookie.TTL = "15m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = c.Server.Cookie.TTL
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "socialauth"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Registration.RequireActivation == "" {
		c.Registration.RequireActivation = string(store.ActivationNone)
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderSettings{}
	}
}

// Validate chequea valores críticos.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.TokenKey != "" {
		if _, err := secretbox.ParseKey(c.Storage.TokenKey); err != nil {
			return fmt.Errorf("config: storage.token_key: %w", err)
		}
	}
	switch c.Session.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session.driver %q", c.Session.Driver)
	}
	for _, d := range []string{c.Server.Cookie.TTL, c.Session.TTL, c.Storage.Postgres.ConnMaxLifetime, c.Server.RateLimit.Window} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for name, p := range c.Providers {
		if !isKnown(name) {
			return fmt.Errorf("config: unknown provider %q", name)
		}
		if p.Enabled && p.ClientID == "" {
			return fmt.Errorf("config: providers.%s.client_id required", name)
		}
	}
	return nil
}

func (c *Config) loadKeyFiles() error {
	for name, p := range c.Providers {
		if p.PrivateKeyPath == "" {
			continue
		}
		b, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("config: providers.%s.private_key_path: %w", name, err)
		}
		if p.Extra == nil {
			p.Extra = map[string]string{}
		}
		p.Extra["private_key"] = string(b)
		c.Providers[name] = p
	}
	return nil
}

func isKnown(name string) bool {
	for _, k := range KnownProviders {
		if k == name {
			return true
		}
	}
	return false
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con SOCIALAUTH_*.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvBool("COOKIE_SECURE"); ok {
		c.Server.Cookie.Secure = v
	}
	if v, ok := getEnvCSV("RETURN_HOSTS"); ok {
		c.Server.ReturnHosts = v
	}
	if v, ok := getEnvBool("TRUST_PROXY"); ok {
		c.Server.TrustProxy = v
	}
	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.Server.RateLimit.Max = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("TOKEN_KEY"); ok {
		c.Storage.TokenKey = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_DRIVER"); ok {
		c.Session.Driver = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Session.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Session.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Session.Redis.DB = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}

	// REGISTRATION
	if v, ok := getEnvStr("ADMIN_EMAIL"); ok {
		c.Registration.AdminEmail = v
	}
	if v, ok := getEnvBool("REGISTRATION_OPEN"); ok {
		c.Registration.Open = v
	}
	if v, ok := getEnvStr("REQUIRE_ACTIVATION"); ok {
		c.Registration.RequireActivation = v
	}

	// PROVIDERS: SOCIALAUTH_<NAME>_CLIENT_ID, _CLIENT_SECRET, _ENABLED, _EXTRA="k=v;k2=v2"
	for _, name := range KnownProviders {
		up := strings.ToUpper(name) + "_"
		p, had := c.Providers[name]
		touched := false
		if v, ok := getEnvBool(up + "ENABLED"); ok {
			p.Enabled, touched = v, true
		}
		if v, ok := getEnvStr(up + "CLIENT_ID"); ok {
			p.ClientID, touched = v, true
		}
		if v, ok := getEnvStr(up + "CLIENT_SECRET"); ok {
			p.ClientSecret, touched = v, true
		}
		if v, ok := getEnvKVList(up+"EXTRA", ";"); ok {
			if p.Extra == nil {
				p.Extra = map[string]string{}
			}
			for k, val := range v {
				p.Extra[k] = val
			}
			touched = true
		}
		if had || touched {
			if c.Providers == nil {
				c.Providers = map[string]ProviderSettings{}
			}
			c.Providers[name] = p
		}
	}
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
