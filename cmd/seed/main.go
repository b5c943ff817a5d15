package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-booking/internal/auth"
	"github.com/clinicdesk/clinic-booking/internal/db"
	"github.com/clinicdesk/clinic-booking/internal/identity"
)

const devTokenTTL = 24 * time.Hour

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 0)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedUsers(context.Background(), pool, identity.RoleDoctor, 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedUsers(context.Background(), pool, identity.RolePatient, 200)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	// Print a handful of dev bearer tokens so booked flows can be exercised
	// with curl right away.
	printDevTokens(doctors[:3], secret)
	printDevTokens(patients[:3], secret)

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role identity.Role, count int) ([]identity.User, error) {
	log.Printf("seeding %d users with role %s", count, role)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	users := make([]identity.User, 0, count)
	for i := 0; i < count; i++ {
		u := identity.User{
			ID:       uuid.New(),
			Username: fmt.Sprintf("%s-%s", role, strings.ToLower(gofakeit.Username())),
			Email:    gofakeit.Email(),
			Role:     role,
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, u.ID, u.Username, u.Email, u.Role)
		if err != nil {
			return nil, err
		}

		users = append(users, u)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("%s users seeded", role)
	return users, nil
}

func printDevTokens(users []identity.User, secret string) {
	for _, u := range users {
		tok, err := auth.MakeToken(u, secret, devTokenTTL)
		if err != nil {
			log.Printf("mint token for %s: %v", u.Username, err)
			continue
		}
		fmt.Printf("%s %s: %s\n", u.Role, u.Username, tok)
	}
}
