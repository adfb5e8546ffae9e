package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/models"
)

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) *apperrors.AppError
	CountByCompetition(ctx context.Context, competitionID string) (int64, *apperrors.AppError)
}

type submissionRepo struct {
	db *database.DynamoDBClient
}

func NewSubmissionRepository(db *database.DynamoDBClient) SubmissionRepository {
	return &submissionRepo{db: db}
}

// Create commits the durable submission row. The conditional put makes
// a queue redelivery of an already-committed submission surface as
// ALREADY_EXISTS instead of a duplicate row.
func (r *submissionRepo) Create(ctx context.Context, submission *models.Submission) *apperrors.AppError {
	submission.PK = models.CompetitionPK(submission.CompetitionId)
	submission.SK = models.SubmissionSK(submission.CompetitionId, submission.Email)
	submission.CreatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(submission)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal submission")
	}

	_, err = r.db.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.db.Table()),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return apperrors.New(apperrors.CodeAlreadyExists, "submission already committed")
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create submission")
	}

	return nil
}

// CountByCompetition counts committed submissions; this is the
// processed-count side of a stats snapshot.
func (r *submissionRepo) CountByCompetition(ctx context.Context, competitionID string) (int64, *apperrors.AppError) {
	var total int64
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.db.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.db.Table()),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: models.CompetitionPK(competitionID)},
				":prefix": &types.AttributeValueMemberS{Value: models.SubmissionSKPrefix()},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})

		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to count submissions")
		}

		total += int64(result.Count)

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return total, nil
}
