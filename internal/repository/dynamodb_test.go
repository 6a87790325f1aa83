package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/BerylCAtieno/iac-workitem-api/internal/models"
)

// fakeDynamo records the last request of each kind and returns canned output.
type fakeDynamo struct {
	putInput    *dynamodb.PutItemInput
	updateInput *dynamodb.UpdateItemInput
	queryInputs []*dynamodb.QueryInput

	getOutput    *dynamodb.GetItemOutput
	updateOutput *dynamodb.UpdateItemOutput
	queryPages   []*dynamodb.QueryOutput
	err          error
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.getOutput, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.updateOutput, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.err != nil {
		return nil, f.err
	}
	page := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return page, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoCreateIsConditional(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewDynamoRepository(fake, "work-items")

	if err := repo.Create(context.Background(), sampleItem("u1", "f1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if fake.putInput.ConditionExpression == nil || !strings.Contains(*fake.putInput.ConditionExpression, "attribute_not_exists") {
		t.Errorf("ConditionExpression = %v, want attribute_not_exists", fake.putInput.ConditionExpression)
	}
	if _, ok := fake.putInput.Item["supportingDocumentId"]; ok {
		t.Errorf("empty supportingDocumentId was written")
	}

	fake.err = &types.ConditionalCheckFailedException{}
	if err := repo.Create(context.Background(), sampleItem("u1", "f1")); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Create on existing key error = %v, want ErrAlreadyExists", err)
	}
}

func TestDynamoUpdateExpression(t *testing.T) {
	updated := sampleItem("u1", "f1")
	updated.AnalysisStatus = models.StatusInProgress
	attrs, err := attributevalue.MarshalMap(updated)
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}

	fake := &fakeDynamo{updateOutput: &dynamodb.UpdateItemOutput{Attributes: attrs}}
	repo := NewDynamoRepository(fake, "work-items")

	got, err := repo.Update(context.Background(), "u1", "f1", models.WorkItemUpdate{
		AnalysisStatus:   models.Ptr(models.StatusInProgress),
		IfAnalysisStatus: models.Ptr(models.StatusNotStarted),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.AnalysisStatus != models.StatusInProgress {
		t.Errorf("AnalysisStatus = %q", got.AnalysisStatus)
	}

	in := fake.updateInput
	if !strings.HasPrefix(*in.UpdateExpression, "SET ") {
		t.Errorf("UpdateExpression = %q", *in.UpdateExpression)
	}
	if strings.Contains(*in.UpdateExpression, "analysisStatus") {
		t.Errorf("attribute name not escaped: %q", *in.UpdateExpression)
	}

	names := map[string]bool{}
	for _, n := range in.ExpressionAttributeNames {
		names[n] = true
	}
	if !names["analysisStatus"] || !names["fileId"] {
		t.Errorf("ExpressionAttributeNames = %v", in.ExpressionAttributeNames)
	}
	if names["fileName"] || names["tokenCount"] {
		t.Errorf("update touches attributes that were not set: %v", in.ExpressionAttributeNames)
	}
	if !strings.Contains(*in.ConditionExpression, "attribute_exists") {
		t.Errorf("ConditionExpression = %q", *in.ConditionExpression)
	}
	if in.ReturnValues != types.ReturnValueAllNew {
		t.Errorf("ReturnValues = %q", in.ReturnValues)
	}
}

func TestDynamoUpdateFromAbsentStatus(t *testing.T) {
	attrs, err := attributevalue.MarshalMap(sampleItem("u1", "f1"))
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}
	fake := &fakeDynamo{updateOutput: &dynamodb.UpdateItemOutput{Attributes: attrs}}
	repo := NewDynamoRepository(fake, "work-items")

	_, err = repo.Update(context.Background(), "u1", "f1", models.WorkItemUpdate{
		IaCGenerationStatus:   models.Ptr(models.StatusInProgress),
		IfIaCGenerationStatus: models.Ptr(models.Status("")),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	cond := *fake.updateInput.ConditionExpression
	if !strings.Contains(cond, "attribute_not_exists") {
		t.Errorf("ConditionExpression = %q, want attribute_not_exists for an absent status", cond)
	}

	for placeholder, v := range fake.updateInput.ExpressionAttributeValues {
		s, ok := v.(*types.AttributeValueMemberS)
		if ok && s.Value == "" && !strings.Contains(cond, placeholder) {
			t.Errorf("empty status value %s not used in condition %q", placeholder, cond)
		}
	}

	// A concrete expected status is still an equality check.
	expr, err := buildUpdate(models.WorkItemUpdate{
		IaCGenerationStatus:   models.Ptr(models.StatusCompleted),
		IfIaCGenerationStatus: models.Ptr(models.StatusInProgress),
	})
	if err != nil {
		t.Fatalf("buildUpdate: %v", err)
	}
	if strings.Contains(*expr.Condition(), "attribute_not_exists") {
		t.Errorf("Condition = %q, want equality only", *expr.Condition())
	}
}

func TestDynamoUpdateConditionFailures(t *testing.T) {
	existing, _ := attributevalue.MarshalMap(sampleItem("u1", "f1"))

	tests := []struct {
		name string
		item map[string]types.AttributeValue
		want error
	}{
		{"record missing", nil, ErrNotFound},
		{"status changed", existing, ErrConditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDynamo{err: &types.ConditionalCheckFailedException{Item: tt.item}}
			repo := NewDynamoRepository(fake, "work-items")
			_, err := repo.Update(context.Background(), "u1", "f1", models.WorkItemUpdate{TokenCount: models.Ptr(1)})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDynamoGetMissing(t *testing.T) {
	fake := &fakeDynamo{getOutput: &dynamodb.GetItemOutput{}}
	item, err := NewDynamoRepository(fake, "work-items").Get(context.Background(), "u1", "f1")
	if err != nil || item != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", item, err)
	}
}

func TestDynamoQueryPaginates(t *testing.T) {
	first, _ := attributevalue.MarshalMap(sampleItem("u1", "f1"))
	second, _ := attributevalue.MarshalMap(sampleItem("u1", "f2"))

	fake := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{first}, LastEvaluatedKey: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: "u1"},
			"fileId": &types.AttributeValueMemberS{Value: "f1"},
		}},
		{Items: []map[string]types.AttributeValue{second}},
	}}

	items, err := NewDynamoRepository(fake, "work-items").Query(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 2 || items[1].FileID != "f2" {
		t.Errorf("Query = %+v", items)
	}
	if len(fake.queryInputs) != 2 {
		t.Errorf("Query made %d calls, want 2", len(fake.queryInputs))
	}
}

func TestClassifyDynamo(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	if !IsTransient(classifyDynamo(throttled)) {
		t.Errorf("throttling not classified as transient")
	}
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException"}
	if IsTransient(classifyDynamo(denied)) {
		t.Errorf("access denied classified as transient")
	}
}
