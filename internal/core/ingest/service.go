// Package ingest hands already-normalized statement rows to the database-side
// ingestion procedure.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"statement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultProcedure is the ingestion procedure called when none is configured.
const DefaultProcedure = "ingest_bank_statement"

var (
	ErrNotConfigured    = errors.New("statement ingestion is not configured")
	ErrInvalidProcedure = errors.New("invalid ingestion procedure name")
	ErrNoRows           = errors.New("no rows to commit")
)

// plain or schema-qualified identifier, nothing that needs quoting
var procedureRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Querier is the slice of *pgxpool.Pool the service needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service defines the commit operation.
type Service interface {
	Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitReceipt, error)
}

type service struct {
	db     Querier
	query  string
	logger *zap.Logger
}

// NewService validates the procedure name and builds the submitter. A nil db
// yields a service whose Commit always returns ErrNotConfigured.
func NewService(db Querier, procedure string, logger *zap.Logger) (Service, error) {
	if procedure == "" {
		procedure = DefaultProcedure
	}
	if !procedureRegex.MatchString(procedure) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProcedure, procedure)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		db:     db,
		query:  fmt.Sprintf("SELECT %s($1::jsonb)", procedure),
		logger: logger,
	}, nil
}

// Commit forwards the rows verbatim. The procedure's reply is returned as-is;
// there is no retry.
func (svc *service) Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitReceipt, error) {
	if svc.db == nil {
		return nil, ErrNotConfigured
	}
	if len(req.Rows) == 0 {
		return nil, ErrNoRows
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	var reply []byte
	if err := svc.db.QueryRow(ctx, svc.query, string(payload)).Scan(&reply); err != nil {
		svc.logger.Error("ingestion procedure failed",
			zap.String("import_id", req.ImportID),
			zap.String("bank_account_id", req.BankAccountID),
			zap.Int("rows", len(req.Rows)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ingestion procedure failed: %w", err)
	}

	receipt := &domain.CommitReceipt{
		ImportID:  req.ImportID,
		Submitted: len(req.Rows),
	}
	if len(reply) > 0 {
		result, err := decodeReply(reply)
		if err != nil {
			// the procedure has already committed; report its raw reply
			svc.logger.Warn("ingestion reply is not JSON",
				zap.String("import_id", req.ImportID),
				zap.Error(err),
			)
			result = map[string]any{"result": string(reply)}
		}
		receipt.Result = result
	}

	svc.logger.Info("statement rows submitted",
		zap.String("import_id", req.ImportID),
		zap.String("bank_account_id", req.BankAccountID),
		zap.Int("rows", receipt.Submitted),
	)
	return receipt, nil
}

// decodeReply keeps object replies as they are and wraps anything else under "result".
func decodeReply(reply []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(reply, &v); err != nil {
		return nil, fmt.Errorf("unreadable ingestion reply: %w", err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	default:
		return map[string]any{"result": t}, nil
	}
}
