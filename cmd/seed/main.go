// seed fills a development database with doctors, patients and a week of
// availability, and prints a dev bearer token for one user of each role.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/teleconsult/internal/db"
	"github.com/careloop/teleconsult/internal/identity"
)

var defaultSlots = []string{"09:00", "09:30", "10:00", "10:30", "11:00", "14:00", "14:30", "15:00", "15:30", "16:00"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedUsers(context.Background(), pool, "doctor", 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedUsers(context.Background(), pool, "patient", 200)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, doctors); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" && len(doctors) > 0 && len(patients) > 0 {
		printDevToken(secret, "doctor", doctors[0])
		printDevToken(secret, "patient", patients[0])
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d %ss", count, role)

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, phone, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, phone, role)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("%ss seeded", role)
	return ids, nil
}

// seedAvailability publishes the default video slots for the next 7 days
// for every doctor.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) error {
	log.Printf("seeding availability for %d doctors", len(doctors))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, doctorID := range doctors {
		for day := 0; day < 7; day++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability (id, doctor_id, date, service_type, is_available, time_slots, created_at, updated_at)
				VALUES ($1, $2, $3, 'video', true, $4, now(), now())
				ON CONFLICT (doctor_id, date) DO NOTHING
			`, uuid.New(), doctorID, today.AddDate(0, 0, day), defaultSlots)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func printDevToken(secret, role string, userID uuid.UUID) {
	exp := jwt.NewNumericDate(time.Now().Add(24 * time.Hour))
	token, err := identity.Issue(secret, userID, role, *exp)
	if err != nil {
		log.Printf("issue %s token: %v", role, err)
		return
	}
	fmt.Printf("dev %s token (user %s):\n%s\n", role, userID, token)
}
