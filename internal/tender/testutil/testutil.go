package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tanafus/tender/internal/config"
	"github.com/tanafus/tender/internal/middleware"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/handler"
	"github.com/tanafus/tender/internal/tender/repository"
	"github.com/tanafus/tender/internal/tender/service"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_tender"
	JWTSecret  = "tender-engine-jwt-secret-2025"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Services *service.Services
	Repos    *repository.Repositories
	Store    *MemoryStore
	T        *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "tender")
	password := getEnv("DB_PASSWORD", "tender123")
	dbname := getEnv("DB_NAME", "tender_engine")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so all pooled connections use the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.Tender{},
		&entity.BOQItem{},
		&entity.EvaluationCriterion{},
		&entity.BidSubmission{},
		&entity.BidPricingLine{},
		&entity.ImportSession{},
		&entity.EvaluationPanel{},
		&entity.EvaluationScore{},
		&entity.CombinedScoreEntry{},
		&entity.ApprovalWorkflow{},
		&entity.ApprovalLevel{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// MemoryStore is an in-memory object store standing in for MinIO in tests
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// SetupEnv wires the full stack against a test schema: repositories,
// services (no redis), in-memory object store and an authenticated router.
func SetupEnv(t *testing.T) *TestEnv {
	t.Helper()

	db := SetupTestDB(t)
	repos := repository.NewRepositories(db)
	store := NewMemoryStore()

	cfg := &config.Config{
		Import: config.ImportConfig{
			PreviewRows:      20,
			MatchThreshold:   0.80,
			FormulaTolerance: 0.01,
			OutlierMultiple:  3.0,
		},
	}

	svc := service.NewServices(repos, nil, store, cfg, zap.NewNop())
	handlers := handler.NewHandlers(svc)

	router := SetupRouter()
	api := AuthGroup(router, "/api/v1")
	handler.RegisterRoutes(api, handlers)

	return &TestEnv{
		DB:       db,
		Router:   router,
		Services: svc,
		Repos:    repos,
		Store:    store,
		T:        t,
	}
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"roles": roles,
		"iss":   "tender-engine",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// AdminToken returns a token for a tender_admin test user
func AdminToken() string {
	return GenerateTestToken("test-admin-001", "Test Admin", "admin@test.com", []string{"tender_admin"})
}

// PanelistToken returns a token for a plain panelist test user
func PanelistToken(userID string) string {
	return GenerateTestToken(userID, "Panelist "+userID, userID+"@test.com", []string{"panelist"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTender creates a publishable tender with BOQ items and criteria
func SeedTender(t *testing.T, db *gorm.DB, deadline time.Time) *entity.Tender {
	t.Helper()
	tender := &entity.Tender{
		ID:                 uuid.New().String()[:32],
		Reference:          "TDR-" + uuid.New().String()[:8],
		Title:              "Test Tender",
		Status:             entity.TenderStatusDraft,
		BaseCurrency:       "SAR",
		TechnicalWeight:    60,
		CommercialWeight:   40,
		SubmissionDeadline: deadline,
		Version:            1,
		CreatedBy:          "test-admin-001",
		BOQItems: []entity.BOQItem{
			{
				ID: uuid.New().String()[:32], ItemNumber: "1.01",
				Description: "Supply and install structural steel", Quantity: 100, UOM: "t", SortOrder: 0,
			},
			{
				ID: uuid.New().String()[:32], ItemNumber: "1.02",
				Description: "Concrete pouring grade 40", Quantity: 250, UOM: "m3", SortOrder: 1,
			},
		},
		Criteria: []entity.EvaluationCriterion{
			{ID: uuid.New().String()[:32], Name: "Technical capability", WeightPercentage: 60, SortOrder: 0},
			{ID: uuid.New().String()[:32], Name: "Track record", WeightPercentage: 40, SortOrder: 1},
		},
	}
	for i := range tender.BOQItems {
		tender.BOQItems[i].TenderID = tender.ID
	}
	for i := range tender.Criteria {
		tender.Criteria[i].TenderID = tender.ID
	}
	if err := db.Create(tender).Error; err != nil {
		t.Fatalf("Failed to seed tender: %v", err)
	}
	return tender
}

// SeedBid creates a bid submission in the given state
func SeedBid(t *testing.T, db *gorm.DB, tenderID, bidderID, status string, submittedAt time.Time) *entity.BidSubmission {
	t.Helper()
	bid := &entity.BidSubmission{
		ID:           uuid.New().String()[:32],
		TenderID:     tenderID,
		BidderID:     bidderID,
		SubmittedAt:  submittedAt,
		Status:       status,
		Currency:     "SAR",
		FxRate:       1,
		ImportStatus: entity.ImportStatusPending,
		Version:      1,
	}
	if err := db.Create(bid).Error; err != nil {
		t.Fatalf("Failed to seed bid: %v", err)
	}
	return bid
}

// SeedImportedBid creates an eligible opened bid with an imported total
func SeedImportedBid(t *testing.T, db *gorm.DB, tenderID, bidderID string, normalizedTotal float64, submittedAt time.Time) *entity.BidSubmission {
	t.Helper()
	bid := SeedBid(t, db, tenderID, bidderID, entity.BidStatusOpened, submittedAt)
	if err := db.Model(bid).Updates(map[string]interface{}{
		"import_status":           entity.ImportStatusImported,
		"native_total_amount":     normalizedTotal,
		"normalized_total_amount": normalizedTotal,
	}).Error; err != nil {
		t.Fatalf("Failed to mark bid imported: %v", err)
	}
	bid.ImportStatus = entity.ImportStatusImported
	bid.NativeTotalAmount = normalizedTotal
	bid.NormalizedTotalAmount = normalizedTotal
	return bid
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
