package database

import (
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// SeedAdmin creates the initial back-office account from
// ADMIN_EMAIL/ADMIN_PASSWORD. Skips silently when an admin already
// exists or the env vars are not set.
func SeedAdmin(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users WHERE role = 'admin'"); err != nil {
		return err
	}
	if count > 0 {
		log.Println("✓ Admin already seeded, skipping...")
		return nil
	}

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("⚠️  ADMIN_EMAIL/ADMIN_PASSWORD not set, no admin seeded")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO users (id, email, password, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'admin', $5, $5)`,
		uuid.New().String(), email, string(hash), "Admin", now,
	)
	if err != nil {
		return err
	}

	log.Printf("🌱 Seeded admin account: %s", email)
	return nil
}
