package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"go.uber.org/zap"
)

// QueryLogRepository implements the repositories.QueryLogRepository interface
type QueryLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(db *DB, logger *zap.Logger) repositories.QueryLogRepository {
	return &QueryLogRepository{
		db:     db,
		logger: logger,
	}
}

const queryLogColumns = `id, request_id, user_id, query, answer, model_version, latency_ms,
		failure_mode, confidence, is_refusal, is_low_confidence, created_at`

// Insert inserts a new query log entry
func (r *QueryLogRepository) Insert(ctx context.Context, log *models.QueryLog) error {
	query := `
		INSERT INTO query_logs (` + queryLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.RequestID,
		log.UserID,
		log.Query,
		log.Answer,
		log.ModelVersion,
		log.LatencyMs,
		log.FailureMode,
		log.Confidence,
		log.IsRefusal,
		log.IsLowConfidence,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	r.logger.Debug("query log inserted", zap.String("request_id", log.RequestID))
	return nil
}

// GetByRequestID retrieves a log entry by request id
func (r *QueryLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error) {
	query := `SELECT ` + queryLogColumns + ` FROM query_logs WHERE request_id = $1 ORDER BY created_at DESC LIMIT 1`

	executor := GetExecutor(ctx, r.db)
	log, err := scanQueryLog(executor.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: query log %s", repositories.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to get query log: %w", err)
	}
	return log, nil
}

// ListRecent returns the newest entries first
func (r *QueryLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error) {
	query := `SELECT ` + queryLogColumns + ` FROM query_logs ORDER BY created_at DESC LIMIT $1`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.QueryLog
	for rows.Next() {
		log, err := scanQueryLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query logs: %w", err)
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueryLog(row rowScanner) (*models.QueryLog, error) {
	log := &models.QueryLog{}
	var userID, failureMode sql.NullString
	err := row.Scan(
		&log.ID,
		&log.RequestID,
		&userID,
		&log.Query,
		&log.Answer,
		&log.ModelVersion,
		&log.LatencyMs,
		&failureMode,
		&log.Confidence,
		&log.IsRefusal,
		&log.IsLowConfidence,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		log.UserID = &userID.String
	}
	if failureMode.Valid {
		log.FailureMode = &failureMode.String
	}
	return log, nil
}
