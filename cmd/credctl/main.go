package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra/credentials"
)

// credctl manages per-user generation credentials: grant a provider token,
// revoke one, or show the stored record.
func main() {
	var (
		ownerFlag  string
		tokenFlag  string
		ttlFlag    time.Duration
		revokeFlag bool
		showFlag   bool
	)
	flag.StringVar(&ownerFlag, "owner", "", "owner user ID (required)")
	flag.StringVar(&tokenFlag, "token", "", "provider token to grant (fallbacks to PROVIDER_TOKEN)")
	flag.DurationVar(&ttlFlag, "ttl", 0, "credential lifetime, 0 means non-expiring")
	flag.BoolVar(&revokeFlag, "revoke", false, "revoke the owner's credential")
	flag.BoolVar(&showFlag, "show", false, "print the owner's stored credential record")
	flag.Parse()

	_ = godotenv.Load()

	owner := strings.TrimSpace(ownerFlag)
	if owner == "" {
		fmt.Fprintln(os.Stderr, "-owner is required")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	queries := db.New(pool)
	if err := queries.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply schema: %v\n", err)
		os.Exit(1)
	}
	store := credentials.NewStore(queries)

	switch {
	case revokeFlag:
		if err := store.Revoke(ctx, owner); err != nil {
			fmt.Fprintf(os.Stderr, "failed to revoke credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("revoked credential for %s\n", owner)

	case showFlag:
		record, err := queries.GetGenerationCredential(ctx, owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load credential: %v\n", err)
			os.Exit(1)
		}
		expires := "never"
		if record.ExpiresAt != nil {
			expires = record.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("owner:   %s\nexpires: %s\nupdated: %s\n", record.OwnerID, expires, record.UpdatedAt.UTC().Format(time.RFC3339))

	default:
		token := strings.TrimSpace(tokenFlag)
		if token == "" {
			token = strings.TrimSpace(os.Getenv("PROVIDER_TOKEN"))
		}
		if token == "" {
			fmt.Fprintln(os.Stderr, "a token is required via -token or PROVIDER_TOKEN")
			os.Exit(1)
		}
		if err := store.Grant(ctx, owner, token, ttlFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to grant credential: %v\n", err)
			os.Exit(1)
		}
		lifetime := "non-expiring"
		if ttlFlag > 0 {
			lifetime = "expires in " + ttlFlag.String()
		}
		fmt.Printf("granted credential for %s (%s)\n", owner, lifetime)
	}
}
