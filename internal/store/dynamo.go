package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/model"
)

// DynamoFiles implements Files on a DynamoDB table keyed by
// (project_id HASH, file_id RANGE).
type DynamoFiles struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoFiles(client *dynamodb.Client, tableName string) *DynamoFiles {
	return &DynamoFiles{client: client, tableName: tableName}
}

func fileKeyAttrs(key FileKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"project_id": &types.AttributeValueMemberS{Value: key.ProjectID},
		"file_id":    &types.AttributeValueMemberS{Value: key.FileID},
	}
}

func (d *DynamoFiles) Get(ctx context.Context, key FileKey) (*model.File, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       fileKeyAttrs(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get file record: %w", err)
	}
	if out.Item == nil {
		return nil, apperr.New(apperr.CodeNotFound, "file "+key.FileID+" not found")
	}
	var f model.File
	if err := attributevalue.UnmarshalMap(out.Item, &f); err != nil {
		return nil, fmt.Errorf("unmarshal file record: %w", err)
	}
	return &f, nil
}

func (d *DynamoFiles) Create(ctx context.Context, f *model.File) error {
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal file record: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(file_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return apperr.New(apperr.CodeAlreadyExists, "file record already exists")
		}
		return fmt.Errorf("create file record: %w", err)
	}
	return nil
}

func (d *DynamoFiles) FindByName(ctx context.Context, projectID, name string) (*model.File, error) {
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.tableName),
		FilterExpression: aws.String("#projectId = :projectId AND #name = :name AND #isDeleted = :false"),
		ExpressionAttributeNames: map[string]string{
			"#projectId": "project_id",
			"#name":      "name",
			"#isDeleted": "is_deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":projectId": &types.AttributeValueMemberS{Value: projectID},
			":name":      &types.AttributeValueMemberS{Value: name},
			":false":     &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("find file by name: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var f model.File
	if err := attributevalue.UnmarshalMap(out.Items[0], &f); err != nil {
		return nil, fmt.Errorf("unmarshal file record: %w", err)
	}
	return &f, nil
}

func (d *DynamoFiles) ListByProject(ctx context.Context, projectID string) ([]model.File, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("#projectId = :projectId"),
		FilterExpression:       aws.String("#isDeleted = :false"),
		ExpressionAttributeNames: map[string]string{
			"#projectId": "project_id",
			"#isDeleted": "is_deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":projectId": &types.AttributeValueMemberS{Value: projectID},
			":false":     &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	var files []model.File
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &files); err != nil {
		return nil, fmt.Errorf("unmarshal file records: %w", err)
	}
	return files, nil
}

// ApplyTransition prepends the activity in a single conditional update. The
// condition pins both the version counter and the log length, so the update
// lands only if no other transition was applied since expect was read.
func (d *DynamoFiles) ApplyTransition(ctx context.Context, key FileKey, expect Head, mut Mutation) error {
	actAttr, err := attributevalue.Marshal(mut.Activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	update := "SET #activities = list_append(:newActivities, #activities)"
	names := map[string]string{
		"#activities":     "activities",
		"#currentVersion": "current_version",
		"#isDeleted":      "is_deleted",
	}
	values := map[string]types.AttributeValue{
		":newActivities": &types.AttributeValueMemberL{Value: []types.AttributeValue{actAttr}},
		":expectVersion": &types.AttributeValueMemberN{Value: strconv.FormatInt(expect.CurrentVersion, 10)},
		":expectLogLen":  &types.AttributeValueMemberN{Value: strconv.Itoa(expect.ActivityCount)},
		":false":         &types.AttributeValueMemberBOOL{Value: false},
	}
	if mut.NewVersion != 0 {
		update += ", #currentVersion = :newVersion, #lastModifiedAt = :lastModifiedAt"
		names["#lastModifiedAt"] = "last_modified_at"
		values[":newVersion"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(mut.NewVersion, 10)}
		lm, err := attributevalue.Marshal(mut.Activity.CreatedAt)
		if err != nil {
			return fmt.Errorf("marshal activity time: %w", err)
		}
		values[":lastModifiedAt"] = lm
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              fileKeyAttrs(key),
		UpdateExpression: aws.String(update),
		ConditionExpression: aws.String(
			"#currentVersion = :expectVersion AND size(#activities) = :expectLogLen AND #isDeleted = :false",
		),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("apply transition: %w", err)
	}
	return nil
}

func (d *DynamoFiles) UpdateInfo(ctx context.Context, key FileKey, name, description string, tags []string) error {
	tagsAttr, err := attributevalue.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              fileKeyAttrs(key),
		UpdateExpression: aws.String("SET #name = :name, #description = :description, #tags = :tags"),
		ExpressionAttributeNames: map[string]string{
			"#name":        "name",
			"#description": "description",
			"#tags":        "tags",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":        &types.AttributeValueMemberS{Value: name},
			":description": &types.AttributeValueMemberS{Value: description},
			":tags":        tagsAttr,
		},
	})
	if err != nil {
		return fmt.Errorf("update file info: %w", err)
	}
	return nil
}

func (d *DynamoFiles) MarkDeleted(ctx context.Context, key FileKey) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              fileKeyAttrs(key),
		UpdateExpression: aws.String("SET #isDeleted = :true"),
		ExpressionAttributeNames: map[string]string{
			"#isDeleted": "is_deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("mark file deleted: %w", err)
	}
	return nil
}

// DynamoVersions implements Versions on a DynamoDB table keyed by
// (file_id HASH, version_number RANGE).
type DynamoVersions struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoVersions(client *dynamodb.Client, tableName string) *DynamoVersions {
	return &DynamoVersions{client: client, tableName: tableName}
}

func versionKeyAttrs(fileID string, version int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"file_id":        &types.AttributeValueMemberS{Value: fileID},
		"version_number": &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
	}
}

func (d *DynamoVersions) Put(ctx context.Context, v *model.Version) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal version record: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put version record: %w", err)
	}
	return nil
}

func (d *DynamoVersions) Get(ctx context.Context, fileID string, version int64) (*model.Version, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       versionKeyAttrs(fileID, version),
	})
	if err != nil {
		return nil, fmt.Errorf("get version record: %w", err)
	}
	if out.Item == nil {
		return nil, apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %d of file %s not found", version, fileID))
	}
	var v model.Version
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal version record: %w", err)
	}
	return &v, nil
}

func (d *DynamoVersions) ListByFile(ctx context.Context, fileID string) ([]model.Version, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("#fileId = :fileId"),
		ExpressionAttributeNames: map[string]string{
			"#fileId": "file_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fileId": &types.AttributeValueMemberS{Value: fileID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	var versions []model.Version
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &versions); err != nil {
		return nil, fmt.Errorf("unmarshal version records: %w", err)
	}
	return versions, nil
}

func (d *DynamoVersions) SetRetain(ctx context.Context, fileID string, version int64, retain bool) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 versionKeyAttrs(fileID, version),
		UpdateExpression:    aws.String("SET #retain = :retain"),
		ConditionExpression: aws.String("attribute_exists(file_id)"),
		ExpressionAttributeNames: map[string]string{
			"#retain": "retain",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":retain": &types.AttributeValueMemberBOOL{Value: retain},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return apperr.New(apperr.CodeNotFound, fmt.Sprintf("version %d of file %s not found", version, fileID))
		}
		return fmt.Errorf("set retain flag: %w", err)
	}
	return nil
}

func (d *DynamoVersions) ListExpired(ctx context.Context, cutoff time.Time) ([]model.Version, error) {
	cutoffAttr, err := attributevalue.Marshal(cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal cutoff: %w", err)
	}
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.tableName),
		FilterExpression: aws.String("#deleted = :false AND #retain = :false AND #createdAt < :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#deleted":   "deleted",
			"#retain":    "retain",
			"#createdAt": "created_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false":  &types.AttributeValueMemberBOOL{Value: false},
			":cutoff": cutoffAttr,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan expired versions: %w", err)
	}
	var versions []model.Version
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &versions); err != nil {
		return nil, fmt.Errorf("unmarshal version records: %w", err)
	}
	return versions, nil
}

func (d *DynamoVersions) MarkDeleted(ctx context.Context, fileID string, version int64) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              versionKeyAttrs(fileID, version),
		UpdateExpression: aws.String("SET #deleted = :true"),
		ExpressionAttributeNames: map[string]string{
			"#deleted": "deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("mark version deleted: %w", err)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
