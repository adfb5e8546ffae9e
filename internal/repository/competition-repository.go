package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/models"
)

type CompetitionRepository interface {
	GetById(ctx context.Context, competitionID string) (*models.Competition, *apperrors.AppError)
	ListByStatus(ctx context.Context, statuses ...models.CompetitionStatus) ([]*models.Competition, *apperrors.AppError)

	// Transaction operations
	GetUpdateStatusTransaction(ctx context.Context, competitionID string, status models.CompetitionStatus) types.Update
}

type competitionRepo struct {
	db *database.DynamoDBClient
}

func NewCompetitionRepository(db *database.DynamoDBClient) CompetitionRepository {
	return &competitionRepo{db: db}
}

func (r *competitionRepo) GetById(ctx context.Context, competitionID string) (*models.Competition, *apperrors.AppError) {
	result, err := r.db.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.db.Table()),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CompetitionPK(competitionID)},
			"SK": &types.AttributeValueMemberS{Value: models.MetaSK()},
		},
	})

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get competition")
	}

	if result.Item == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "competition not found")
	}

	var competition models.Competition
	if err := attributevalue.UnmarshalMap(result.Item, &competition); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to unmarshal competition")
	}

	return &competition, nil
}

func (r *competitionRepo) ListByStatus(ctx context.Context, statuses ...models.CompetitionStatus) ([]*models.Competition, *apperrors.AppError) {
	competitions := make([]*models.Competition, 0)

	for _, status := range statuses {
		result, err := r.db.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.db.Table()),
			IndexName:              aws.String("GSI1"),
			KeyConditionExpression: aws.String("GSI1PK = :status"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: models.StatusGSI1PK(status)},
			},
		})

		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list competitions by status")
		}

		for _, item := range result.Items {
			var competition models.Competition
			if err := attributevalue.UnmarshalMap(item, &competition); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to unmarshal competition")
			}
			competitions = append(competitions, &competition)
		}
	}

	return competitions, nil
}

func (r *competitionRepo) GetUpdateStatusTransaction(ctx context.Context, competitionID string, status models.CompetitionStatus) types.Update {
	return types.Update{
		TableName: aws.String(r.db.Table()),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CompetitionPK(competitionID)},
			"SK": &types.AttributeValueMemberS{Value: models.MetaSK()},
		},
		UpdateExpression: aws.String("SET #status = :status, GSI1PK = :gsi1pk, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(status), 10)},
			":gsi1pk": &types.AttributeValueMemberS{Value: models.StatusGSI1PK(status)},
			":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	}
}
