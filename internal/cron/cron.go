package cron

import (
	"context"
	"os"
	"sync"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailsync/interfaces"
	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

// CONSTANTS
const (
	// GroupSearch serializes jobs that write the search index
	GroupSearch = "search"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupSearch: new(sync.Mutex),
	},
}

type CronManager struct {
	mu      sync.Mutex
	cfg     *cron_config.Config
	log     logger.Logger
	cron    *cronv3.Cron
	stopCh  chan struct{}
	jobIDs  map[string]cronv3.EntryID
	index   interfaces.MessageSearchIndex
	manager interfaces.SynchronizationManager
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, index interfaces.MessageSearchIndex, manager interfaces.SynchronizationManager) *CronManager {
	if cfg == nil {
		cfg = &cron_config.Config{}
	}
	return &CronManager{
		cfg:     cfg,
		log:     log,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		index:   index,
		manager: manager,
	}
}

// Stop waits for running jobs. The manager can be started again afterwards.
func (cm *CronManager) Stop() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cron == nil {
		return
	}
	cm.log.Info("Stopping cron manager")
	ctx := cm.cron.Stop()
	// Wait for jobs to finish
	<-ctx.Done()
	cm.cron = nil
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		if err := cm.addJob(c, "heartbeat", cm.cfg.CronScheduleHeartbeat, func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		}); err != nil {
			return err
		}
	}

	if cm.cfg.CronScheduleSearchCommit != "" && cm.index != nil {
		if err := cm.addJob(c, "search_commit", cm.cfg.CronScheduleSearchCommit, func() {
			jobLocks.locks[GroupSearch].Lock()
			defer jobLocks.locks[GroupSearch].Unlock()
			cm.commitSearchIndex()
		}); err != nil {
			return err
		}
	}

	if cm.cfg.CronScheduleStatusReport != "" && cm.manager != nil {
		if err := cm.addJob(c, "status_report", cm.cfg.CronScheduleStatusReport, cm.reportStatus); err != nil {
			return err
		}
	}
	return nil
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule string, job func()) error {
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		job()
	})
	if err != nil {
		cm.log.Errorf("Could not add %s cron job: %v", name, err)
		return err
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cron != nil {
		return nil
	}
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.jobIDs = make(map[string]cronv3.EntryID)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	cm.stopCh = make(chan struct{})
	return nil
}

func (cm *CronManager) commitSearchIndex() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.commitSearchIndex")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	// failed documents stay queued for the next run
	if err := cm.index.Commit(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Warnf("Failed to commit search index: %v", err)
	}
}

func (cm *CronManager) reportStatus() {
	span, _ := tracing.StartTracerSpan(context.Background(), "CronManager.reportStatus")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	statuses := cm.manager.Status()
	counts := make(map[string]int)
	authFailed := 0
	for _, status := range statuses {
		counts[status.State]++
		if status.AuthFailed {
			authFailed++
		}
	}
	span.LogKV("accounts", len(statuses), "auth_failed", authFailed)
	cm.log.Infof("Sync status: running=%t accounts=%d states=%v auth_failed=%d",
		cm.manager.IsRunning(), len(statuses), counts, authFailed)
}
