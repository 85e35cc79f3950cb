package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/config"
	"github.com/cbums/cbums/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the initial superadmin account",
	RunE:  runSeed,
}

var (
	seedEmail    string
	seedPassword string
)

func init() {
	seedCmd.Flags().StringVar(&seedEmail, "email", "superadmin@cbums.local", "superadmin email")
	seedCmd.Flags().StringVar(&seedPassword, "password", "", "superadmin password (random if omitted)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := user.NewStore(pool)

	// Seeding is idempotent: an existing superadmin with this email wins.
	if existing, err := store.GetByEmail(ctx, seedEmail); err == nil {
		slog.Info("superadmin already exists, skipping seed", "id", existing.ID)
		return nil
	}

	password := seedPassword
	generated := false
	if password == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		password = hex.EncodeToString(b)
		generated = true
	}

	u, err := store.Create(ctx, user.CreateUserInput{
		Name:     "Super Admin",
		Email:    seedEmail,
		Password: password,
		Role:     auth.RoleSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("creating superadmin: %w", err)
	}

	slog.Info("created superadmin", "id", u.ID, "email", u.Email)
	fmt.Printf("\n=== Superadmin Seeded ===\n")
	fmt.Printf("Email:    %s\n", u.Email)
	if generated {
		fmt.Printf("Password: %s\n", password)
	}
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/api/v1/auth/login -d '{\"email\":\"%s\",\"password\":\"...\"}'\n", u.Email)

	return nil
}
