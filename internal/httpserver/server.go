package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fdg312/fitdiary/internal/aiplans"
	"github.com/fdg312/fitdiary/internal/auth"
	"github.com/fdg312/fitdiary/internal/blob"
	"github.com/fdg312/fitdiary/internal/catalog"
	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/diary"
	"github.com/fdg312/fitdiary/internal/planapply"
	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/fdg312/fitdiary/internal/storage/memory"
	"github.com/fdg312/fitdiary/internal/storage/postgres"
)

const seedTimeout = 30 * time.Second

// Server представляет HTTP сервер
type Server struct {
	config         *config.Config
	mux            *http.ServeMux
	storage        storage.Storage
	catalog        *catalog.Service
	authMiddleware *auth.Middleware
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config) *Server {
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}

	s.initStorage()
	s.catalog = catalog.NewService(s.storage.GetCatalogStorage())
	s.seedCatalog()

	s.routes()
	return s
}

// initStorage инициализирует storage (Memory или Postgres)
func (s *Server) initStorage() {
	if s.config.DatabaseURL == "" {
		log.Println("INFO storage: using in-memory storage")
		s.storage = memory.New()
		return
	}

	log.Println("INFO storage: connecting to PostgreSQL...")
	pgStorage, err := postgres.New(context.Background(), s.config.DatabaseURL)
	if err != nil {
		log.Printf("ERROR storage: postgres connect failed: %v", err)
		log.Println("WARN storage: fallback to in-memory storage")
		s.storage = memory.New()
		return
	}
	log.Println("INFO storage: PostgreSQL connected")
	s.storage = pgStorage
}

// seedCatalog загружает каталог из blob store (S3) или локального файла.
// Ошибки не фатальны: без каталога все позиции плана остаются неразрешёнными.
func (s *Server) seedCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	seed, source, err := s.loadSeed(ctx)
	if err != nil {
		log.Printf("WARN catalog.seed: %v", err)
		return
	}
	if seed == nil {
		log.Println("INFO catalog.seed: no seed source configured")
		return
	}

	res, err := s.catalog.Import(ctx, seed)
	if err != nil {
		log.Printf("WARN catalog.seed: import from %s failed: %v", source, err)
		return
	}
	log.Printf("INFO catalog.seed: source=%s foods=%d exercises=%d", source, res.Foods, res.Exercises)
}

func (s *Server) loadSeed(ctx context.Context) (*catalog.Seed, string, error) {
	store, mode, err := blob.NewBlobStore(ctx, s.config.Blob, log.Default())
	if err != nil {
		return nil, "", err
	}

	if store != nil && s.config.CatalogSeedKey != "" {
		seed, err := s.catalog.FetchSeed(ctx, store, s.config.CatalogSeedKey)
		if err == nil {
			return seed, mode + ":" + s.config.CatalogSeedKey, nil
		}
		if !errors.Is(err, blob.ErrObjectNotFound) || s.config.CatalogSeedFile == "" {
			return nil, "", err
		}
		log.Printf("WARN catalog.seed: key %s not found, trying file", s.config.CatalogSeedKey)
	}

	if s.config.CatalogSeedFile == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(s.config.CatalogSeedFile)
	if err != nil {
		return nil, "", fmt.Errorf("read seed file: %w", err)
	}
	seed, err := s.catalog.ParseSeed(data)
	if err != nil {
		return nil, "", err
	}
	return seed, "file:" + s.config.CatalogSeedFile, nil
}

// routes регистрирует маршруты
func (s *Server) routes() {
	// Health check (no auth required)
	s.mux.HandleFunc("/healthz", s.handleHealthz)

	// Auth API (no auth required)
	authService := auth.NewService(s.config)
	authHandler := auth.NewHandlers(authService)
	s.authMiddleware = auth.NewMiddleware(s.config, authService)

	// POST /v1/auth/dev - local dev token
	s.mux.HandleFunc("POST /v1/auth/dev", authHandler.HandleDevAuth)

	// Catalog API
	catalogHandler := catalog.NewHandler(s.catalog)
	s.mux.HandleFunc("GET /v1/catalog/foods", catalogHandler.HandleSearchFoods)
	s.mux.HandleFunc("GET /v1/catalog/exercises", catalogHandler.HandleSearchExercises)

	// AI plans API: validate → normalize → apply
	normalizer := plannormalize.New(s.catalog, s.config.Intake)
	engine := planapply.New(s.storage.GetDiaryStorage(), s.storage.GetBatchesStorage(), s.config.Intake)
	aiPlansHandler := aiplans.NewHandler(aiplans.NewService(normalizer, engine), s.config.Intake.MaxBodyKB)

	// POST /v1/ai/recommendations/mealplan/apply
	s.mux.HandleFunc("POST /v1/ai/recommendations/mealplan/apply", aiPlansHandler.HandleApplyMealPlan)
	s.mux.HandleFunc("POST /ai/recommendations/mealplan/apply", aiPlansHandler.HandleApplyMealPlan)

	// POST /v1/ai/recommendations/workout/apply
	s.mux.HandleFunc("POST /v1/ai/recommendations/workout/apply", aiPlansHandler.HandleApplyWorkout)
	s.mux.HandleFunc("POST /ai/recommendations/workout/apply", aiPlansHandler.HandleApplyWorkout)

	// Diary API
	diaryHandler := diary.NewHandler(diary.NewService(s.storage.GetDiaryStorage()))
	s.mux.HandleFunc("GET /v1/diary/meals", diaryHandler.HandleListMeals)
	s.mux.HandleFunc("DELETE /v1/diary/meals/{id}", diaryHandler.HandleDeleteMeal)
	s.mux.HandleFunc("GET /v1/workouts/sessions", diaryHandler.HandleListSessions)
	s.mux.HandleFunc("DELETE /v1/workouts/sessions/{id}", diaryHandler.HandleDeleteSession)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Handler returns the router wrapped in the middleware chain
// (outermost first): CORS → Rate Limit → Auth → Router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.authMiddleware.Wrap(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)
	return handler
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	log.Printf("Сервер запущен на http://localhost%s\n", addr)
	log.Printf("Health check: http://localhost%s/healthz\n", addr)
	log.Printf("Meal plan apply: http://localhost%s/v1/ai/recommendations/mealplan/apply\n", addr)

	return http.ListenAndServe(addr, s.Handler())
}

// Close закрывает storage и освобождает ресурсы
func (s *Server) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
