package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/database"
	"github.com/quizlock/quizlock-backend/internal/logger"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/quizlock/quizlock-backend/internal/service"
)

func main() {
	var count int
	var password string
	flag.IntVar(&count, "count", 50, "Number of students to seed")
	flag.StringVar(&password, "password", "student123", "Password for all seeded students")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, rdb)
	studentService := service.NewStudentService(studentRepo, authService, rdb, log)

	fmt.Printf("=== Seeding %d Students ===\n", count)

	created := 0
	for i := 1; i <= count; i++ {
		req := &model.CreateStudentRequest{
			Username: fmt.Sprintf("student%03d", i),
			Name:     fmt.Sprintf("Student %03d", i),
			Password: password,
		}
		student, err := studentService.Create(ctx, req)
		if err != nil {
			// Most likely a duplicate username from a previous run.
			fmt.Printf("skip %s: %v\n", req.Username, err)
			continue
		}
		created++
		fmt.Printf("created %s (ID %d)\n", student.Username, student.ID)
	}

	fmt.Printf("Done. %d/%d students created.\n", created, count)
}
