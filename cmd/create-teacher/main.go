package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/database"
	"github.com/stemsi/autoexam/internal/logger"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/repository"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/validator"
	"golang.org/x/term"
)

func main() {
	reset := flag.Bool("reset", false, "Reset the password of an existing teacher")
	list := flag.Bool("list", false, "List existing teachers and exit")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.SetupWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	teacherRepo := repository.NewTeacherRepository(pool)

	if *list {
		teachers, err := teacherRepo.List(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list teachers")
		}
		for _, t := range teachers {
			fmt.Printf("%-4d %-20s %s\n", t.ID, t.Username, t.FullName())
		}
		return
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if *reset {
		fmt.Println("=== Reset Teacher Password ===")
	} else {
		fmt.Println("=== Create New Teacher ===")
	}

	username := prompt(reader, "Enter Username: ")
	if !validator.IsUsername(username) {
		fmt.Println("Error: Username must be 3-64 letters, digits, dots, dashes or underscores")
		return
	}

	var first, last, email string
	if !*reset {
		first = prompt(reader, "Enter First Name: ")
		if first == "" {
			fmt.Println("Error: First name is required")
			return
		}
		last = prompt(reader, "Enter Last Name: ")
		email = prompt(reader, "Enter Email (optional): ")
	}

	password, ok := readPassword()
	if !ok {
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hash, err := service.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	if *reset {
		err := teacherRepo.UpdatePassword(ctx, username, hash)
		if errors.Is(err, repository.ErrNotFound) {
			fmt.Printf("Error: teacher %q does not exist\n", username)
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to reset password")
		}
		fmt.Printf("\nSuccess! Password for '%s' has been reset.\n", username)
		return
	}

	t := &model.Teacher{
		Username:     username,
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
	}
	err = teacherRepo.Create(ctx, t)
	if errors.Is(err, repository.ErrDuplicate) {
		fmt.Printf("Error: teacher %q already exists. Use -reset to change the password.\n", username)
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create teacher")
	}

	if err := os.MkdirAll(service.NewExamFileService(cfg, log).Dir(username), 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create exams directory")
	}

	fmt.Printf("\nSuccess! Teacher '%s' (%s) created with ID: %d\n", t.Username, t.FullName(), t.ID)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}

// readPassword asks twice without echo.
func readPassword() (string, bool) {
	fmt.Print("Enter Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return "", false
	}
	if len(first) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return "", false
	}

	fmt.Print("Confirm Password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return "", false
	}
	if string(first) != string(second) {
		fmt.Println("Error: Passwords do not match")
		return "", false
	}
	return string(first), true
}
