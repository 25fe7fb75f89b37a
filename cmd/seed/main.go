// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"support-access-plane/internal/config"
	"support-access-plane/internal/db"
	"support-access-plane/internal/security"
	userdomain "support-access-plane/internal/user/domain"
	userrepo "support-access-plane/internal/user/repository"
)

const (
	devAdminEmail  = "admin@example.com"
	devMemberEmail = "member@example.com"
	devPassword    = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (admin@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        devAdminEmail,
		Name:         "Dev Admin",
		Role:         userdomain.RoleAdmin,
		Status:       userdomain.UserStatusActive,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("create dev admin: %v", err)
	}

	member := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     devMemberEmail,
		Name:      "Dev Member",
		Role:      userdomain.RoleMember,
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := users.Create(ctx, member); err != nil {
		log.Fatalf("create dev member: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s / %s\n", devAdminEmail, devPassword)
	fmt.Printf("Support target: %s (id %s)\n", devMemberEmail, member.ID)
}
