package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address              string
		DebugAddress         string
		ShutdownTimeout      time.Duration
		SessionTTL           time.Duration
		SessionPurgeInterval time.Duration
		DisableRequestLogs   bool
	}

	BackendConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	IdentityConfig struct {
		Provider  string // gotrue | inmem
		BaseURL   string
		APIKey    string
		JWTSecret string
		Timeout   time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	EmailConfig struct {
		Provider         string // console | sendgrid | resend
		DefaultFromEmail string
		SendgridAPIKey   string
		ResendAPIKey     string
		FrontendBaseURL  string
	}

	CLIConfig struct {
		TokenFile string
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		WorkDir      string
		RollbarToken string

		Server   ServerConfig
		Backend  BackendConfig
		Identity IdentityConfig
		Database DatabaseConfig
		Email    EmailConfig
		CLI      CLIConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c EmailConfig) FromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Address: c.DefaultFromEmail}
	}
	return *addr
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the upper-cased ENV value, e.g. DEV_BACKEND_BASEURL.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Track My Academy")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("workDir", Getwd())
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.sessionTTL", 7*24*time.Hour)
	v.SetDefault("server.sessionPurgeInterval", time.Hour)
	v.SetDefault("server.disableRequestLogs", false)

	v.SetDefault("backend.baseURL", "http://localhost:5000")
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("identity.provider", "gotrue")
	v.SetDefault("identity.baseURL", "http://localhost:9999")
	v.SetDefault("identity.apiKey", "")
	v.SetDefault("identity.jwtSecret", "")
	v.SetDefault("identity.timeout", 10*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "trackmyacademy")
	v.SetDefault("database.user", "trackmyacademy")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "trackmyacademy.db")

	v.SetDefault("email.provider", "console")
	v.SetDefault("email.defaultFromEmail", "Track My Academy <noreply@localhost>")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.resendApiKey", "")
	v.SetDefault("email.frontendBaseURL", "http://localhost:3000")

	home, _ := os.UserHomeDir()
	v.SetDefault("cli.tokenFile", filepath.Join(home, ".trackmyacademy", "token"))

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(v.GetString("workDir"), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		WorkDir:      v.GetString("workDir"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:              v.GetString("server.address"),
			DebugAddress:         v.GetString("server.debugAddress"),
			ShutdownTimeout:      v.GetDuration("server.shutdownTimeout"),
			SessionTTL:           v.GetDuration("server.sessionTTL"),
			SessionPurgeInterval: v.GetDuration("server.sessionPurgeInterval"),
			DisableRequestLogs:   v.GetBool("server.disableRequestLogs"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(v.GetString("backend.baseURL"), "/"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Identity: IdentityConfig{
			Provider:  v.GetString("identity.provider"),
			BaseURL:   strings.TrimRight(v.GetString("identity.baseURL"), "/"),
			APIKey:    v.GetString("identity.apiKey"),
			JWTSecret: v.GetString("identity.jwtSecret"),
			Timeout:   v.GetDuration("identity.timeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Email: EmailConfig{
			Provider:         v.GetString("email.provider"),
			DefaultFromEmail: v.GetString("email.defaultFromEmail"),
			SendgridAPIKey:   v.GetString("email.sendgridApiKey"),
			ResendAPIKey:     v.GetString("email.resendApiKey"),
			FrontendBaseURL:  v.GetString("email.frontendBaseURL"),
		},
		CLI: CLIConfig{
			TokenFile: v.GetString("cli.tokenFile"),
		},
	}
}

// NewTestConfig returns a Config suited for tests: no network services, in-memory storage.
func NewTestConfig() *Config {
	return &Config{
		AppName:  "Track My Academy",
		Env:      "TEST",
		Build:    "test",
		TestMode: true,
		WorkDir:  Getwd(),
		Server: ServerConfig{
			ShutdownTimeout:      time.Second,
			SessionTTL:           time.Hour,
			SessionPurgeInterval: time.Hour,
			DisableRequestLogs:   true,
		},
		Backend:  BackendConfig{Timeout: time.Second},
		Identity: IdentityConfig{Provider: "inmem", Timeout: time.Second},
		Database: DatabaseConfig{Engine: "inmem"},
		Email: EmailConfig{
			Provider:         "console",
			DefaultFromEmail: "noreply@localhost",
			FrontendBaseURL:  "http://localhost:3000",
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
