// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis) and composes the
// IAM container. This is the only place that knows about every module, and
// the only place scope requirements are declared.
package main

import (
	"context"
	"fmt"

	"github.com/Abraxas-365/custodia/pkg/config"
	"github.com/Abraxas-365/custodia/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/custodia/pkg/iam/scope"
	"github.com/Abraxas-365/custodia/pkg/iam/webauthn/webauthninfra"
	"github.com/Abraxas-365/custodia/pkg/logx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB    *sqlx.DB
	Redis *redis.Client

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("initializing application container")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Config.Database.Host,
		c.Config.Database.Port,
		c.Config.Database.User,
		c.Config.Database.Password,
		c.Config.Database.Name,
		c.Config.Database.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to redis: %v", err)
	}
	logx.Info("redis connected")
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	registry := buildScopeRegistry()

	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:          c.DB,
		Redis:       c.Redis,
		Cfg:         c.Config,
		Registry:    registry,
		Attestation: webauthninfra.NewNoneAttestationVerifier(),
		Assertion:   webauthninfra.NewES256AssertionVerifier(c.Config.WebAuthn.RPID),
	})
	if err != nil {
		logx.Fatalf("failed to initialize iam container: %v", err)
	}
	c.IAM = iam
}

// buildScopeRegistry declares every protected (target, operation) pair and
// freezes the registry. Routes registered later reference these pairs; an
// undeclared pair fails closed at request time.
func buildScopeRegistry() *scope.Registry {
	registry, err := scope.NewBuilder().
		Declare("credential", "register", "identity:credential:register", "identity:credential:", "identity:").
		Declare("credential", "list", "identity:credential:read", "identity:credential:", "identity:").
		Declare("credential", "revoke", "identity:credential:revoke", "identity:credential:", "identity:").
		Declare("profile", "read", "identity:profile:read", "identity:profile:", "identity:").
		Build()
	if err != nil {
		logx.Fatalf("invalid scope declarations: %v", err)
	}
	return registry
}

// Cleanup releases shared infrastructure.
func (c *Container) Cleanup() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.WithError(err).Warn("closing database")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.WithError(err).Warn("closing redis")
		}
	}
}
