package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"stepup-auth/internal/config"
	"stepup-auth/internal/db"
	"stepup-auth/internal/domain"
	"stepup-auth/internal/repository"
)

// seeduser crea un usuario local para probar el login.
func main() {
	_ = godotenv.Load()

	var (
		dsn      = flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
		mail     = flag.String("email", "", "user email")
		password = flag.String("password", "", "plaintext password")
		role     = flag.String("role", string(domain.RoleUser), "user | admin | super_admin")
		fullName = flag.String("name", "", "full name")
		company  = flag.String("company", "", "company name")
	)
	flag.Parse()

	if *dsn == "" || strings.TrimSpace(*mail) == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	r := domain.Role(*role)
	if !r.Valid() {
		log.Fatalf("unknown role %q", *role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, &config.Config{DatabaseURL: *dsn})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(*mail)),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(*fullName),
		CompanyName:  strings.TrimSpace(*company),
		Role:         r,
		Status:       domain.UserActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repository.NewPgUserRepository(pool).Create(ctx, user); err != nil {
		log.Fatalf("create user: %v", err)
	}
	log.Printf("created user %s (%s)", user.ID, user.Role)
}
