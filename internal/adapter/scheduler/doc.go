// Package scheduler runs the hub's housekeeping jobs on cron schedules
// (github.com/robfig/cron/v3, seconds field enabled).
//
// Jobs get a context that is canceled on Stop and, when JobOptions.Timeout is
// set, bounded by it. Panics are recovered and reported through JobHooks like
// errors. SkipIfRunning drops a tick while the previous run is still going;
// DelayIfRunning queues it.
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: log})
//	_, err := s.Add("@every 10m", scheduler.UploadJanitor(dir, time.Hour, log), scheduler.JobOptions{
//		Name:          "upload-janitor",
//		OverlapPolicy: scheduler.SkipIfRunning,
//	})
//	s.Start()
//	defer s.StopContext(shutdownCtx)
package scheduler
