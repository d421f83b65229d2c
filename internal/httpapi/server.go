package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/auth"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/globaltime"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
	"github.com/vanajmoorthy/bibliotype/internal/profile"
)

// maxImportBytes caps one uploaded export file.
const maxImportBytes = 20 << 20

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// UserStore resolves credentials for optional authenticated imports.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (db.User, error)
}

// ProfileService is the orchestrator surface the handlers call.
type ProfileService interface {
	Submit(ctx context.Context, ownerKey, schemaTag string, payload []byte) (db.ProfileJob, error)
	Status(ctx context.Context, jobUUID string) (db.ProfileJob, error)
	ProfileByOwner(ctx context.Context, ownerKey string) (db.Profile, error)
}

// Server is the thin HTTP collaborator: it accepts imports, mints owner
// tokens, and serves job status and finished profiles. No analytics run here.
type Server struct {
	profiles ProfileService
	users    UserStore
	logger   zerolog.Logger
	opts     Options
}

func NewServer(profiles ProfileService, users UserStore, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		profiles: profiles,
		users:    users,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AllowedOrigins:  origins,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.profiles == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("bibliotype API started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("bibliotype API stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", maxImportBytes)))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Import-Token"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/schemas", s.handleSchemas)
	api.POST("/imports", s.handleImport)
	api.GET("/jobs/:job_uuid", s.handleJobStatus)
	api.GET("/profiles/:owner_key", s.handleProfile)
	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "bibliotype",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleSchemas(c echo.Context) error {
	return success(c, map[string]any{
		"schemas": importer.SupportedSchemas(),
	})
}

type importResponse struct {
	JobUUID  string `json:"job_uuid"`
	OwnerKey string `json:"owner_key"`
	Token    string `json:"token,omitempty"`
}

// handleImport accepts one raw export upload. Authenticated callers own
// their profile; everyone else gets a minted token to poll and re-import
// with.
func (s *Server) handleImport(c echo.Context) error {
	schemaTag := strings.TrimSpace(c.QueryParam("schema"))
	if schemaTag == "" {
		return failValidation(c, map[string]string{"schema": "is required"})
	}
	if err := importer.ValidateSchemaTag(schemaTag); err != nil {
		return failValidation(c, map[string]string{"schema": err.Error()})
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes+1))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}
	if len(payload) == 0 {
		return failValidation(c, map[string]string{"body": "import payload is empty"})
	}
	if len(payload) > maxImportBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "Import payload too large", nil)
	}

	ownerKey, mintedToken, err := s.resolveOwner(c)
	if err != nil {
		return failUnauthorized(c, "Invalid credentials")
	}

	job, err := s.profiles.Submit(c.Request().Context(), ownerKey, schemaTag, payload)
	if err != nil {
		if errors.Is(err, importer.ErrUnsupportedSchema) {
			return failValidation(c, map[string]string{"schema": err.Error()})
		}
		s.logger.Error().Err(err).Msg("import submission failed")
		return internalError(c, "Failed to accept import")
	}

	return successWithStatus(c, http.StatusAccepted, importResponse{
		JobUUID:  job.JobUUID,
		OwnerKey: ownerKey,
		Token:    mintedToken,
	})
}

// resolveOwner picks the owner key for an import: basic-auth user, reused
// anonymous token, or a freshly minted one.
func (s *Server) resolveOwner(c echo.Context) (ownerKey, mintedToken string, err error) {
	if username, password, ok := c.Request().BasicAuth(); ok {
		if s.users == nil {
			return "", "", fmt.Errorf("user store unavailable")
		}
		user, lookupErr := s.users.GetUserByUsername(c.Request().Context(), auth.NormalizeUsername(username))
		if lookupErr != nil || !auth.VerifyPassword(password, user.PasswordHash) {
			return "", "", fmt.Errorf("invalid credentials")
		}
		return profile.UserOwnerKey(user.UserID), "", nil
	}

	if token := strings.TrimSpace(c.Request().Header.Get("X-Import-Token")); token != "" {
		return profile.AnonOwnerKey(token), "", nil
	}

	token, err := mintToken()
	if err != nil {
		return "", "", err
	}
	return profile.AnonOwnerKey(token), token, nil
}

func mintToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type jobStatusResponse struct {
	JobUUID     string     `json:"job_uuid"`
	Status      string     `json:"status"`
	RowsSkipped int        `json:"rows_skipped"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (s *Server) handleJobStatus(c echo.Context) error {
	jobUUID := strings.TrimSpace(c.Param("job_uuid"))
	if jobUUID == "" {
		return failValidation(c, map[string]string{"job_uuid": "is required"})
	}

	job, err := s.profiles.Status(c.Request().Context(), jobUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Job not found")
		}
		s.logger.Error().Err(err).Str("job_uuid", jobUUID).Msg("job lookup failed")
		return internalError(c, "Failed to load job")
	}

	return success(c, jobStatusResponse{
		JobUUID:     job.JobUUID,
		Status:      job.Status,
		RowsSkipped: job.RowsSkipped,
		Error:       job.ErrorText,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
		CreatedAt:   job.CreatedAt,
	})
}

func (s *Server) handleProfile(c echo.Context) error {
	ownerKey := strings.TrimSpace(c.Param("owner_key"))
	if ownerKey == "" {
		return failValidation(c, map[string]string{"owner_key": "is required"})
	}

	stored, err := s.profiles.ProfileByOwner(c.Request().Context(), ownerKey)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Profile not found")
		}
		s.logger.Error().Err(err).Str("owner_key", ownerKey).Msg("profile lookup failed")
		return internalError(c, "Failed to load profile")
	}

	return success(c, map[string]any{
		"owner_key":   stored.OwnerKey,
		"fingerprint": stored.Fingerprint,
		"updated_at":  stored.UpdatedAt,
		"profile":     json.RawMessage(stored.Payload),
	})
}
