// Package cleanup は期限切れの管理者セッションを削除する定期ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionCleanupJob は期限切れセッションの削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCleanupJob{db: db, logger: logger}
}

// Run は expires_at を過ぎたセッションを削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read deleted session count", slog.String("error", err.Error()))
		return fmt.Errorf("failed to read deleted session count: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 失敗はログに記録して次の周期で再試行する。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
