package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/repositories"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// Reconciler 定期依据房间成员重建用户的已加入房间缓存
type Reconciler struct {
	rooms    repositories.RoomRepository
	interval time.Duration
	log      *logger.Logger
}

func NewReconciler(rooms repositories.RoomRepository, interval time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Reconciler{rooms: rooms, interval: interval, log: log.Named("reconciler")}
}

// RunOnce 执行一次修正, 返回修正条数
func (r *Reconciler) RunOnce(ctx context.Context) (int64, error) {
	fixed, err := r.rooms.ReconcileMemberships(ctx)
	if err != nil {
		r.log.ErrorContext(ctx, "reconcile memberships failed", zap.Error(err))
		return 0, err
	}
	if fixed > 0 {
		r.log.InfoContext(ctx, "memberships reconciled", zap.Int64("fixed", fixed))
	}
	return fixed, nil
}

// Run 阻塞直到 ctx 结束; interval 不大于 0 时不启动
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}
