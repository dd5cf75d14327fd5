package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/bank"
	"github.com/MikeyZhang75/AI-Tutor/internal/config"
	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/infra/memory"
	pgbank "github.com/MikeyZhang75/AI-Tutor/internal/infra/postgres"
	redisstore "github.com/MikeyZhang75/AI-Tutor/internal/infra/redis"
	"github.com/MikeyZhang75/AI-Tutor/internal/oracle"
	"github.com/MikeyZhang75/AI-Tutor/internal/results"
	"github.com/MikeyZhang75/AI-Tutor/internal/session"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
	transport "github.com/MikeyZhang75/AI-Tutor/internal/transport/http"
	"github.com/MikeyZhang75/AI-Tutor/internal/verify"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tutoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Oracle.URL == "" {
		return fmt.Errorf("oracle url not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store storage.Store = memory.NewProgressStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisstore.NewProgressStore(redisClient, config.Duration(cfg.Redis.TTL, 0))
	}

	var questionBank bank.QuestionBank = bank.NewStaticBank(sampleSets(), sampleQuestionsBySet())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		questionBank = pgbank.NewQuestionBank(pool)
	}
	cachedBank := bank.NewCachedBank(questionBank, config.Duration(cfg.Bank.TTL, 10*time.Minute))

	oracleTimeout := config.Duration(cfg.Oracle.Timeout, 30*time.Second)
	oracleClient := oracle.NewClient(cfg.Oracle.URL, oracleTimeout)
	verifier := verify.NewService(store, oracleClient, oracleTimeout)
	aggregator := results.NewAggregator(store)

	wsHandler := transport.NewWSHandler(func() *session.Session {
		return session.New(cachedBank, store, verifier)
	}, aggregator, cachedBank, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting tutoring service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight verifications land in the store before exiting.
	verifier.Wait()
	return nil
}

// sampleSets provides demo content; swap in the Postgres bank in production.
func sampleSets() []domain.QuestionSet {
	return []domain.QuestionSet{
		{
			ID:             "algebra-1",
			Title:          "Algebra Basics",
			Description:    "Linear equations and simplification",
			Subject:        "Math",
			Grade:          "8",
			TotalQuestions: 3,
			EstimatedTime:  10,
			Difficulty:     domain.DifficultyEasy,
		},
	}
}

func sampleQuestionsBySet() map[string][]domain.Question {
	return map[string][]domain.Question{
		"algebra-1": {
			{
				ID:            "q1",
				SetID:         "algebra-1",
				Order:         1,
				Text:          `Solve for $x$: $2x + 5 = 13$`,
				Type:          domain.TypeMath,
				Difficulty:    domain.DifficultyEasy,
				Points:        10,
				CorrectAnswer: "x = 4",
			},
			{
				ID:            "q2",
				SetID:         "algebra-1",
				Order:         2,
				Text:          `Simplify: $\frac{x^2 - 4}{x - 2}$`,
				Type:          domain.TypeMath,
				Difficulty:    domain.DifficultyMedium,
				Points:        10,
				CorrectAnswer: "x + 2",
			},
			{
				ID:            "q3",
				SetID:         "algebra-1",
				Order:         3,
				Text:          `Solve: $x^2 - 5x + 6 = 0$`,
				Type:          domain.TypeMath,
				Difficulty:    domain.DifficultyMedium,
				Points:        20,
				CorrectAnswer: "x = 2 or x = 3",
			},
		},
	}
}
