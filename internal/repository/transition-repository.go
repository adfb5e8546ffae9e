package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/models"
)

// TransitionRepository appends rows to the lifecycle audit log. Rows
// are never mutated; the only write path is the transactional append
// alongside the competition's status update.
type TransitionRepository interface {
	GetAppendTransaction(ctx context.Context, transition *models.StatusTransition) (types.Put, *apperrors.AppError)
}

type transitionRepo struct {
	db *database.DynamoDBClient
}

func NewTransitionRepository(db *database.DynamoDBClient) TransitionRepository {
	return &transitionRepo{db: db}
}

func (r *transitionRepo) GetAppendTransaction(ctx context.Context, transition *models.StatusTransition) (types.Put, *apperrors.AppError) {
	transition.PK = models.CompetitionPK(transition.CompetitionId)
	transition.SK = models.TransitionSK(transition.TransitionedAt, uuid.New().String())

	item, err := attributevalue.MarshalMap(transition)
	if err != nil {
		return types.Put{}, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal status transition")
	}

	return types.Put{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	}, nil
}
