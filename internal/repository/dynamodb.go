package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"
	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
)

const (
	partitionKey = "userId"
	sortKey      = "fileId"
)

// DynamoAPI is the subset of the DynamoDB client used by the repository.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoRepository struct {
	client DynamoAPI
	table  string
}

func NewDynamoRepository(client DynamoAPI, table string) Repository {
	return &dynamoRepository{client: client, table: table}
}

// NewDynamoClient builds a DynamoDB client from the default AWS credential
// chain. Retries of throttled and 5xx calls happen inside the SDK.
func NewDynamoClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.AWSMaxAttempts)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

func (r *dynamoRepository) key(userID, fileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: userID},
		sortKey:      &types.AttributeValueMemberS{Value: fileID},
	}
}

func (r *dynamoRepository) Create(ctx context.Context, item *models.WorkItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name(sortKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build put condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, item.UserID, item.FileID)
		}
		return classifyDynamo(fmt.Errorf("failed to put work item: %w", err))
	}

	return nil
}

func (r *dynamoRepository) Get(ctx context.Context, userID, fileID string) (*models.WorkItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(userID, fileID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classifyDynamo(fmt.Errorf("failed to get work item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item models.WorkItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work item: %w", err)
	}
	return &item, nil
}

// buildUpdate turns upd into an update expression. Attribute names always go
// through placeholders since names like "status" are reserved words.
func buildUpdate(upd models.WorkItemUpdate) (expression.Expression, error) {
	assignments := upd.Assignments()
	if len(assignments) == 0 {
		return expression.Expression{}, fmt.Errorf("update sets no attributes")
	}

	var set expression.UpdateBuilder
	for i, a := range assignments {
		if i == 0 {
			set = expression.Set(expression.Name(a.Attr), expression.Value(a.Value))
			continue
		}
		set = set.Set(expression.Name(a.Attr), expression.Value(a.Value))
	}

	cond := expression.AttributeExists(expression.Name(sortKey))
	if upd.IfAnalysisStatus != nil {
		cond = cond.And(statusCondition(models.AttrAnalysisStatus, *upd.IfAnalysisStatus))
	}
	if upd.IfIaCGenerationStatus != nil {
		cond = cond.And(statusCondition(models.AttrIaCGenerationStatus, *upd.IfIaCGenerationStatus))
	}

	return expression.NewBuilder().WithUpdate(set).WithCondition(cond).Build()
}

// statusCondition matches a stored status. Records written before a track
// existed have no attribute at all, which reads back as the empty status.
func statusCondition(attr string, want models.Status) expression.ConditionBuilder {
	name := expression.Name(attr)
	if want == "" {
		return expression.AttributeNotExists(name).Or(name.Equal(expression.Value("")))
	}
	return name.Equal(expression.Value(string(want)))
}

func (r *dynamoRepository) Update(ctx context.Context, userID, fileID string, upd models.WorkItemUpdate) (*models.WorkItem, error) {
	expr, err := buildUpdate(upd)
	if err != nil {
		return nil, fmt.Errorf("failed to build update for %s/%s: %w", userID, fileID, err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.table),
		Key:                                 r.key(userID, fileID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, fileID)
			}
			return nil, fmt.Errorf("%w: %s/%s", ErrConditionFailed, userID, fileID)
		}
		return nil, classifyDynamo(fmt.Errorf("failed to update work item: %w", err))
	}

	var item models.WorkItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated work item: %w", err)
	}
	return &item, nil
}

func (r *dynamoRepository) Query(ctx context.Context, userID string) ([]*models.WorkItem, error) {
	keyCond := expression.Key(partitionKey).Equal(expression.Value(userID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var items []*models.WorkItem
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyDynamo(fmt.Errorf("failed to query work items: %w", err))
		}

		var batch []*models.WorkItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal work items: %w", err)
		}
		items = append(items, batch...)
	}

	return items, nil
}

func (r *dynamoRepository) Delete(ctx context.Context, userID, fileID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(userID, fileID),
	})
	if err != nil {
		return classifyDynamo(fmt.Errorf("failed to delete work item: %w", err))
	}
	return nil
}

var transientDynamoCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionConflictException":           true,
}

func classifyDynamo(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientDynamoCodes[apiErr.ErrorCode()] {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
