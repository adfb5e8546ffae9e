package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/models"
)

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.StatsSnapshot) *apperrors.AppError
}

type snapshotRepo struct {
	db *database.DynamoDBClient
}

func NewSnapshotRepository(db *database.DynamoDBClient) SnapshotRepository {
	return &snapshotRepo{db: db}
}

// Save writes one immutable snapshot row. The conditional put keeps a
// retried capture cycle from overwriting an earlier row.
func (r *snapshotRepo) Save(ctx context.Context, snapshot *models.StatsSnapshot) *apperrors.AppError {
	snapshot.PK = models.CompetitionPK(snapshot.CompetitionId)
	snapshot.SK = models.SnapshotSK(snapshot.CapturedAt)

	item, err := attributevalue.MarshalMap(snapshot)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal stats snapshot")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})

	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save stats snapshot")
	}

	return nil
}
