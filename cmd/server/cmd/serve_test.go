package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:  testSecret,
			Issuer:     "agenda-test",
			TokenTTL:   time.Hour,
			BcryptCost: 4,
		},
		Environment: "test",
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCommand(&rootOptions{})
	for _, flag := range []string{"host", "port"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q", flag)
	}
}

func TestServeCommand_ConfigError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "serve", "--port", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	_, err = execute(t)
	assert.ErrorContains(t, err, "config error", "root runs serve by default")
}

func TestNewServices_SessionRoundTrip(t *testing.T) {
	store := memory.New()
	userService, eventService, err := newServices(testConfig(), store, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, eventService)

	ctx := context.Background()
	_, err = userService.Register(ctx, users.NewUserParams{
		Email:    "clerk@example.com",
		Password: "s3cret",
		FullName: "Clerk",
	}, nil)
	require.NoError(t, err)

	session, err := userService.Login(ctx, "clerk@example.com", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	user, err := userService.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, user.Role)
}

func TestNewServices_InvalidSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.BcryptCost = 99
	_, _, err := newServices(cfg, memory.New(), zerolog.Nop())
	assert.ErrorContains(t, err, "password hasher")
}

func TestBootstrapAdmin(t *testing.T) {
	store := memory.New()
	cfg := testConfig()
	service, _, err := newServices(cfg, store, zerolog.Nop())
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		require.NoError(t, bootstrapAdmin(ctx, cfg, service, logger))
		_, err := store.Users().FindByLoginOrEmail(ctx, "boss@example.com")
		assert.Error(t, err)
	})

	cfg.AdminBootstrap = config.AdminBootstrapConfig{Email: "Boss@Example.com", Password: "changeme", FullName: "Boss"}

	t.Run("creates once", func(t *testing.T) {
		require.NoError(t, bootstrapAdmin(ctx, cfg, service, logger))
		record, err := store.Users().FindByLoginOrEmail(ctx, "boss@example.com")
		require.NoError(t, err)
		assert.Equal(t, string(auth.RoleAdmin), record.Role)
		assert.Contains(t, logs.String(), "bootstrapped admin user")

		logs.Reset()
		require.NoError(t, bootstrapAdmin(ctx, cfg, service, logger))
		assert.Empty(t, logs.String(), "second run is a no-op")
	})

	t.Run("admin can log in", func(t *testing.T) {
		session, err := service.Login(ctx, "boss@example.com", "changeme")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, session.User.Role)
	})
}

func TestMigrateDown_RejectsZeroSteps(t *testing.T) {
	_, err := execute(t, "migrate", "down", "--steps", "0")
	assert.ErrorContains(t, err, "--steps")
}
