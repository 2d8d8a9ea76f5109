// Package service contains the service layer for the Reference Data API
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/finref/refdataapi/internal/config"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/utils/state"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var registrySweepKey = "REGISTRY_SWEEP_AT"

const registrySweepBatch = 100

// CronService schedules the recurring ingestion jobs
type CronService struct {
	cfg             *config.Config
	db              *gorm.DB
	redisClient     *redis.Client
	c               *cron.Cron
	state           *state.State
	entities        *repository.EntityRepository
	registryService *RegistryService
	staleness       time.Duration
}

// NewCronService creates a new CronService
func NewCronService(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *CronService {
	stateManager, err := state.NewState(db)
	if err != nil {
		zaplogger.Fatal("failed to create state manager", zaplogger.Fields{"error": err})
	}

	cacheTTL := 60 * time.Minute
	if mins, err := strconv.Atoi(cfg.RegistryCacheTTLMins); err == nil && mins > 0 {
		cacheTTL = time.Duration(mins) * time.Minute
	}
	staleness := 7 * 24 * time.Hour
	if days, err := strconv.Atoi(cfg.RegistryStaleDays); err == nil && days > 0 {
		staleness = time.Duration(days) * 24 * time.Hour
	}

	return &CronService{
		cfg:             cfg,
		db:              db,
		redisClient:     redisClient,
		c:               cron.New(),
		state:           stateManager,
		entities:        repository.NewEntityRepository(db),
		registryService: NewRegistryService(db, redisClient, cfg.RegistryBaseURL, cacheTTL),
		staleness:       staleness,
	}
}

// Start starts the cron service
func (cs *CronService) Start() {
	zaplogger.Info("Initializing CronService")

	// ------------------------------------------------------------
	// SCHEDULED jobs
	// ------------------------------------------------------------
	cs.addScheduledJob("Registry REFRESH Job", cs.registryRefreshJob, "0 6 * * *") // Once at 06:00am, daily

	// ------------------------------------------------------------
	// STARTUP jobs
	// ------------------------------------------------------------
	cs.addStartupJob("Registry REFRESH Job", cs.registryRefreshJob, 10*time.Second)

	cs.c.Start()
}

// Stop stops the scheduler, letting running jobs finish.
func (cs *CronService) Stop() {
	cs.c.Stop()
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{
			"job": name,
		})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{
		"job": name,
	})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Info("STARTED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{
		"job": name,
	})
}

// registryRefreshJob refreshes entities whose registry data has gone stale.
func (cs *CronService) registryRefreshJob() {
	jobName := "Registry REFRESH Job "

	sweepAt, err := cs.state.Get(registrySweepKey)
	if err == nil && !cs.isSweepRequired(sweepAt) {
		zaplogger.Info("Registry sweep not required", zaplogger.Fields{
			registrySweepKey: sweepAt,
		})
		return
	}

	cutoff := time.Now().Add(-cs.staleness)
	entities, err := cs.entities.StaleEntities(cutoff, registrySweepBatch)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	refreshed := 0
	for _, entity := range entities {
		if _, err := cs.registryService.RefreshEntity(ctx, entity.LEI); err != nil {
			zaplogger.Error(jobName, zaplogger.Fields{
				"lei":   entity.LEI,
				"error": err.Error(),
			})
			continue
		}
		refreshed++
	}

	if err := cs.state.Set(registrySweepKey, time.Now().Format("2006-01-02 15:04:05")); err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{"error": err.Error()})
		return
	}

	zaplogger.Info(jobName, zaplogger.Fields{
		"stale":     len(entities),
		"refreshed": refreshed,
	})
}

// isSweepRequired reports whether a sweep already completed today.
func (cs *CronService) isSweepRequired(lastSweepAt string) bool {
	lastSweepTime, err := time.Parse("2006-01-02 15:04:05", lastSweepAt)
	if err != nil {
		return true // if we can't parse the time, assume a sweep is needed
	}

	now := time.Now()
	return !(lastSweepTime.Year() == now.Year() && lastSweepTime.YearDay() == now.YearDay())
}
