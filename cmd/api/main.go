package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/auth"
	"campusattend/internal/checkin"
	"campusattend/internal/config"
	"campusattend/internal/enrollment"
	"campusattend/internal/geo"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/report"
	"campusattend/internal/session"
	"campusattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:checkins")
	}

	sessions := session.NewManager(session.NewPGStore(db.Client), cfg.SessionCodeLen)
	enrolled := enrollment.NewPGChecker(db.Client)
	events := checkin.NewPGStore(db.Client)
	validator := checkin.NewValidator(sessions, enrolled, events)
	aggregator := report.NewAggregator(report.NewPGSource(db.Client))
	cache := report.NewCache(redisClient.Client, cfg.SummaryCacheTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	v1 := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	v1.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	faculty := v1.Group("", auth.RequireRole(auth.RoleFaculty))

	faculty.POST("/sessions", func(c *gin.Context) {
		var req struct {
			CourseID    string     `json:"course_id" binding:"required"`
			WindowStart time.Time  `json:"window_start" binding:"required"`
			WindowEnd   time.Time  `json:"window_end" binding:"required"`
			Origin      *geo.Point `json:"origin"`
			RadiusM     *float64   `json:"radius_m"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.RadiusM != nil && req.Origin == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_m requires origin"})
			return
		}
		claims, _ := auth.FromContext(c)

		now := time.Now().UTC()
		sess, err := sessions.Open(c.Request.Context(), req.CourseID, claims.Subject,
			req.WindowStart, req.WindowEnd, req.Origin, req.RadiusM, now)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrInvalidWindow):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, session.ErrCodeSpaceExhausted):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
			default:
				log.Printf("open session failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			}
			return
		}

		metrics.SessionsOpened.Inc()
		c.JSON(http.StatusCreated, gin.H{
			"id":           sess.ID,
			"session_code": sess.Code,
			"window_start": sess.WindowStart,
			"window_end":   sess.WindowEnd,
		})
	})

	faculty.GET("/sessions/:code", func(c *gin.Context) {
		now := time.Now().UTC()
		sess, err := sessions.Resolve(c.Request.Context(), c.Param("code"), now)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			log.Printf("resolve session failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess, "status": sess.Status(now)})
	})

	faculty.GET("/sessions/:code/checkins", func(c *gin.Context) {
		now := time.Now().UTC()
		sess, err := sessions.Resolve(c.Request.Context(), c.Param("code"), now)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			log.Printf("resolve session failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		list, err := events.ListBySession(c.Request.Context(), sess.ID)
		if err != nil {
			log.Printf("list check-ins failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "checkins": list})
	})

	v1.POST("/checkins", auth.RequireRole(auth.RoleStudent), func(c *gin.Context) {
		var req struct {
			SessionCode string     `json:"session_code" binding:"required"`
			Location    *geo.Point `json:"location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.FromContext(c)

		now := time.Now().UTC()
		res, err := validator.CheckIn(c.Request.Context(), req.SessionCode, claims.Subject, now, req.Location)
		if err != nil {
			respondCheckinError(c, err, claims.Subject)
			return
		}

		metrics.CheckinsAccepted.Inc()
		msg, err := queue.NewCheckinMessage(queue.CheckinAccepted{
			EventID:    res.Event.ID,
			SessionID:  res.Event.SessionID,
			CourseID:   res.Session.CourseID,
			StudentID:  res.Event.StudentID,
			RecordedAt: res.Event.RecordedAt,
		})
		if err == nil {
			if err := q.Publish(c.Request.Context(), msg); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"recorded_at": res.Event.RecordedAt})
	})

	v1.GET("/courses/:courseID/students/:studentID/summary", func(c *gin.Context) {
		courseID, studentID := c.Param("courseID"), c.Param("studentID")
		if !maySeeStudent(c, studentID) {
			return
		}

		if sum, ok, err := cache.Get(c.Request.Context(), courseID, studentID); err == nil && ok {
			c.JSON(http.StatusOK, sum)
			return
		}

		sum, err := aggregator.PerStudentCourse(c.Request.Context(), studentID, courseID, time.Now().UTC())
		if err != nil {
			log.Printf("summary failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		if err := cache.Set(c.Request.Context(), sum); err != nil {
			log.Printf("summary cache set failed: %v", err)
		}
		c.JSON(http.StatusOK, sum)
	})

	v1.GET("/courses/:courseID/students/:studentID/risk", func(c *gin.Context) {
		courseID, studentID := c.Param("courseID"), c.Param("studentID")
		if !maySeeStudent(c, studentID) {
			return
		}

		threshold := cfg.RiskThreshold
		if v := c.Query("threshold"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
				return
			}
			threshold = parsed
		}

		flagged, err := aggregator.RiskFlag(c.Request.Context(), studentID, courseID, threshold, time.Now().UTC())
		if err != nil {
			log.Printf("risk flag failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"at_risk": flagged, "threshold": threshold})
	})

	faculty.GET("/courses/:courseID/trend", func(c *gin.Context) {
		period := report.Period(c.DefaultQuery("period", string(report.PeriodDaily)))
		switch period {
		case report.PeriodDaily, report.PeriodWeekly, report.PeriodMonthly:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be daily, weekly or monthly"})
			return
		}
		var from, to time.Time
		if v := c.Query("from"); v != "" {
			parsed, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
				return
			}
			from = parsed
		}
		if v := c.Query("to"); v != "" {
			parsed, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
				return
			}
			to = parsed
		}

		buckets, err := aggregator.Trend(c.Request.Context(), c.Param("courseID"), period, from, to, time.Now().UTC())
		if err != nil {
			log.Printf("trend failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"period": period, "buckets": buckets})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// respondCheckinError maps the rejection taxonomy onto HTTP statuses. Each
// class gets its own shape so clients can message the student correctly.
func respondCheckinError(c *gin.Context, err error, studentID string) {
	var oor *checkin.OutOfRangeError
	switch {
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		// Benign duplicate: exactly one event exists, nothing to alarm about.
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "message": "already recorded"})
	case errors.Is(err, checkin.ErrSessionNotFound):
		metrics.CheckinsRejected.WithLabelValues("session_not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, checkin.ErrSessionNotStarted):
		metrics.CheckinsRejected.WithLabelValues("not_started").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkin.ErrSessionExpired):
		metrics.CheckinsRejected.WithLabelValues("expired").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkin.ErrNotEnrolled):
		metrics.CheckinsRejected.WithLabelValues("not_enrolled").Inc()
		log.Printf("audit: student %s attempted check-in without enrollment", studentID)
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, checkin.ErrLocationRequired):
		metrics.CheckinsRejected.WithLabelValues("location_required").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &oor):
		metrics.CheckinsRejected.WithLabelValues("out_of_range").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "out of range",
			"distance_m": oor.DistanceM,
			"radius_m":   oor.RadiusM,
		})
	default:
		metrics.CheckinsRejected.WithLabelValues("store_failure").Inc()
		log.Printf("check-in store failure: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
	}
}

// maySeeStudent lets faculty read any student and students read only
// themselves. Writes a 403 and returns false on denial.
func maySeeStudent(c *gin.Context, studentID string) bool {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return false
	}
	if claims.Role == auth.RoleStudent && claims.Subject != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "students may only view their own attendance"})
		return false
	}
	return true
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
