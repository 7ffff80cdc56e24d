package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/config"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/middleware"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret = "mindlogger-test-jwt-secret"
	SecretKey = "mindlogger-test-secret-box-key"
)

// TestEnv holds the resources of one test.
type TestEnv struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Redis    *redis.Client
	Mini     *miniredis.Miniredis
	Router   *database.Router
	Box      *crypto.SecretBox
	Hub      *push.Hub
	Queue    *queue.Queue
	Services *service.Services
	Now      time.Time
	T        *testing.T
}

// SqliteURI returns a fresh database file under the test's temp dir.
func SqliteURI(t *testing.T, name string) string {
	t.Helper()
	return "sqlite://" + filepath.Join(t.TempDir(), name) + "?_busy_timeout=5000"
}

// SetupTestDB opens a migrated SQLite database private to the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(SqliteURI(t, "mindlogger.db"), database.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(entity.Models()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// SetupRedis starts an in-process redis.
func SetupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// NewEnv wires every service against a temp database and an in-process
// redis. The clock is frozen at now.
func NewEnv(t *testing.T, now time.Time) *TestEnv {
	t.Helper()
	db := SetupTestDB(t)
	mr, rdb := SetupRedis(t)
	box, err := crypto.NewSecretBox(SecretKey)
	if err != nil {
		t.Fatalf("Failed to create secret box: %v", err)
	}
	router := database.NewRouter(database.Options{LogLevel: logger.Silent}, zap.NewNop(), entity.AnswerModels()...)
	t.Cleanup(router.Close)

	env := &TestEnv{
		DB:     db,
		Repos:  repository.NewRepositories(db),
		Redis:  rdb,
		Mini:   mr,
		Router: router,
		Box:    box,
		Hub:    push.NewHub(zap.NewNop()),
		Queue:  queue.New(rdb, "test"),
		Now:    now,
		T:      t,
	}
	cfg := &config.Config{}
	cfg.Jobs.MaxRetries = 2
	cfg.Cache.ArbitraryTTL = time.Minute
	env.Services = service.NewServices(service.Deps{
		Repos:    env.Repos,
		Router:   router,
		Redis:    rdb,
		Box:      box,
		Notifier: env.Hub,
		Queue:    env.Queue,
		Config:   cfg,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return env.Now },
	})
	return env
}

// SeedUser creates a user whose password is "password".
func (e *TestEnv) SeedUser(name string) *entity.User {
	e.T.Helper()
	hashed, err := service.HashPassword("password")
	if err != nil {
		e.T.Fatalf("Failed to hash password: %v", err)
	}
	u := &entity.User{
		ID:             uuid.New().String(),
		Email:          name + "@test.com",
		FirstName:      name,
		LastName:       "Test",
		HashedPassword: hashed,
	}
	if err := e.DB.Create(u).Error; err != nil {
		e.T.Fatalf("Failed to seed test user: %v", err)
	}
	return u
}

// SetupRouter creates a gin test router.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group behind the JWT middleware.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret), middleware.Device())
}

// GenerateTestToken signs a token for the user with the test secret.
func GenerateTestToken(userID, email string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"email": email,
		"iss":   "mindlogger-test",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DoRequest executes an HTTP request against the test router.
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string, headers ...string) *httptest.ResponseRecorder {
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
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the {code, message, data} envelope.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}
