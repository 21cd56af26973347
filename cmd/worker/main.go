package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusattend/internal/config"
	"campusattend/internal/queue"
	"campusattend/internal/report"
	"campusattend/internal/riskclient"
	"campusattend/internal/store"
)

// Worker consumes accepted check-ins, refreshes the cached summary for the
// affected student/course pair, and ships features to the risk service when
// attendance drops under the threshold. Everything here is a derived view:
// a lost message just means the next read recomputes from the store.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:checkins")
	}

	aggregator := report.NewAggregator(report.NewPGSource(db.Client))
	cache := report.NewCache(redisClient.Client, cfg.SummaryCacheTTL)
	risk := riskclient.New(cfg.RiskServiceURL, cfg.RiskSkip)

	if !cfg.RiskSkip {
		if err := risk.Health(ctx); err != nil {
			log.Printf("WARNING: risk service not available: %v", err)
		} else {
			log.Println("risk service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeCheckin {
			continue
		}

		accepted, err := queue.DecodeCheckin(msg)
		if err != nil {
			log.Printf("malformed checkin message: %v", err)
			continue
		}

		sum, err := aggregator.PerStudentCourse(ctx, accepted.StudentID, accepted.CourseID, time.Now().UTC())
		if err != nil {
			log.Printf("summary recompute for %s/%s failed: %v", accepted.CourseID, accepted.StudentID, err)
			continue
		}

		if err := cache.Set(ctx, sum); err != nil {
			log.Printf("cache refresh failed: %v", err)
		}

		if sum.Total > 0 && sum.Pct < cfg.RiskThreshold {
			features := riskclient.Features{
				StudentID:        sum.StudentID,
				CourseID:         sum.CourseID,
				TotalSessions:    sum.Total,
				AttendedSessions: sum.Attended,
				AttendancePct:    sum.Pct,
			}
			if err := risk.PushFeatures(ctx, features); err != nil {
				log.Printf("risk feature push failed: %v", err)
			}
		}
	}

	log.Println("worker stopped")
}
