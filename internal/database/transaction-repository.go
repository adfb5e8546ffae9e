package database

import (
	"context"

	"github.com/contestpipe/contestpipe/internal/apperrors"
)

// TransactionRepository commits a built transaction atomically. The
// state machine depends on this for its update+append pair: the status
// row and its audit entry land together or not at all.
type TransactionRepository interface {
	Execute(ctx context.Context, builder *TransactionBuilder) *apperrors.AppError
}

type transactionRepo struct {
	db *DynamoDBClient
}

func NewTransactionRepository(db *DynamoDBClient) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Execute(ctx context.Context, builder *TransactionBuilder) *apperrors.AppError {
	if err := builder.Execute(ctx, r.db.Client); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransactionError, "transactional write failed")
	}
	return nil
}
