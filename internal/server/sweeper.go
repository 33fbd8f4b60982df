package server

import (
	"context"
	"time"
)

// sweepCVRs периодически удаляет CVR старше TTL.
// Клиент с удаленным CVR получит полный патч при следующем pull.
func (s *Server) sweepCVRs(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CVR.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx, time.Now())
		}
	}
}

func (s *Server) sweepOnce(ctx context.Context, now time.Time) int {
	n, err := s.cvrs.DeleteCVRsBefore(ctx, now.Add(-s.cfg.CVR.TTL))
	if err != nil {
		s.logger.Error("Failed to delete expired CVRs", "error", err)
		return 0
	}
	if n > 0 {
		s.metrics.CVRsExpired(n)
		s.logger.Info("Expired CVRs deleted", "count", n)
	}
	return n
}
