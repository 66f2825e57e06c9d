// mksession mints a session token directly into Redis for local development,
// standing in for the auth service.
//
//	go run ./cmd/mksession -user alice -name Alice -ttl 24h
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/meshchat-protocol/meshchat/internal/models"
	"github.com/meshchat-protocol/meshchat/internal/store"
)

func main() {
	userID := flag.String("user", "", "user ID to mint a session for")
	username := flag.String("name", "", "display name (defaults to user ID)")
	ttl := flag.Duration("ttl", 24*time.Hour, "session lifetime")
	redisURL := flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379"), "redis URL")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: mksession -user <id> [-name <display name>] [-ttl 24h]")
		os.Exit(2)
	}
	if *username == "" {
		*username = *userID
	}

	ctx := context.Background()
	rs, err := store.NewRedisStore(ctx, *redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer rs.Close()

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "entropy: %v\n", err)
		os.Exit(1)
	}
	token := hex.EncodeToString(buf)

	rec := &models.SessionRecord{
		UserID:    *userID,
		Username:  *username,
		ExpiresAt: time.Now().Add(*ttl),
	}
	if err := rs.PutSession(ctx, token, rec, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "put session: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token:   %s\n", token)
	fmt.Printf("user:    %s (%s)\n", *userID, *username)
	fmt.Printf("expires: %s\n", rec.ExpiresAt.Format(time.RFC3339))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
