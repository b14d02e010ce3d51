// ABOUTME: adduser and token subcommands for local development accounts
// ABOUTME: Tokens are signed with the configured secret and carry the access type

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/store"
)

// parseFlags reads "--name value" and "--name=value" pairs for the allowed
// names. Positional arguments and unknown flags are errors.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = strings.TrimSpace(value)
	}
	return values, nil
}

func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, s, nil
}

func mintToken(cfg *config.Config, user *store.User) (string, time.Time, error) {
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.GenerateWithClaims(user.ID, auth.Claims{
		Username: user.Username,
		Email:    user.Email,
	}, auth.TokenTypeAccess, cfg.Auth.TokenTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generating token: %w", err)
	}
	return token, time.Now().Add(cfg.Auth.TokenTTL).UTC(), nil
}

func runAddUser(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "username", "first", "last", "email")
	if err != nil {
		return err
	}
	username := flags["username"]
	if username == "" {
		return fmt.Errorf("--username flag is required")
	}
	if len(username) > 150 {
		return fmt.Errorf("username exceeds maximum length of 150 characters")
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now().UTC()
	user := &store.User{
		ID:        uuid.New().String(),
		Username:  username,
		FirstName: flags["first"],
		LastName:  flags["last"],
		Email:     flags["email"],
		IsActive:  true,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return fmt.Errorf("username %q is taken", username)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	token, expiresAt, err := mintToken(cfg, user)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Printf("  ✓ Created user: %s\n", user.FullName())
	fmt.Println()
	cyan.Println("  User")
	cyan.Println("  ----")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Username: %s\n", user.Username)
	if user.Email != "" {
		fmt.Printf("  Email:    %s\n", user.Email)
	}
	fmt.Printf("  Expires:  %s\n", expiresAt.Format("Jan 02, 2006 15:04 MST"))
	fmt.Println()
	fmt.Println(token)
	return nil
}

func runToken(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "username")
	if err != nil {
		return err
	}
	if flags["username"] == "" {
		return fmt.Errorf("--username flag is required")
	}

	cfg, s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.GetUserByUsername(ctx, flags["username"])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no user named %q", flags["username"])
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		return fmt.Errorf("user %q is inactive", user.Username)
	}

	token, _, err := mintToken(cfg, user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
