package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Search index commit, every 15 seconds
	CronScheduleSearchCommit string `env:"CRON_SCHEDULE_SEARCH_COMMIT" envDefault:"*/15 * * * * *"`
	// Synchronizer status report, every 5 minutes
	CronScheduleStatusReport string `env:"CRON_SCHEDULE_STATUS_REPORT" envDefault:"0 */5 * * * *"`
}
