// Package retention prunes the audit trail by age and by size.
//
// Pruning always removes the oldest records, so what remains is a suffix
// of the chain and still passes audit.VerifyChain.
//
// Scheduled pruning uses robfig/cron with standard five-field expressions:
//
//	p := retention.NewPruner(store, retention.Config{MaxAge: 30 * 24 * time.Hour, Schedule: "0 3 * * *"})
//	s := retention.NewScheduler(p)
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop()
package retention
