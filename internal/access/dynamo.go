package access

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okanat/filedock/internal/apperr"
	"github.com/okanat/filedock/internal/model"
)

// DynamoChecker implements Checker against the projects table (keyed by
// project_id).
type DynamoChecker struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoChecker(client *dynamodb.Client, tableName string) *DynamoChecker {
	return &DynamoChecker{client: client, tableName: tableName}
}

func (c *DynamoChecker) Check(ctx context.Context, userID, projectID string, role Role) (*model.Project, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"project_id": &types.AttributeValueMemberS{Value: projectID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get project record: %w", err)
	}
	if out.Item == nil {
		return nil, apperr.New(apperr.CodeNotFound, "project "+projectID+" not found")
	}
	var p model.Project
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal project record: %w", err)
	}
	return &p, Authorize(&p, userID, role)
}

// Authorize applies the role rules to an already-loaded project.
func Authorize(p *model.Project, userID string, role Role) error {
	if userID == p.OwnerID {
		return nil
	}
	if role == RoleContributor {
		for _, id := range p.ContributorIDs {
			if id == userID {
				return nil
			}
		}
	}
	return apperr.New(apperr.CodeNotAuthorized, "user "+userID+" may not act on project "+p.ProjectID)
}

// DynamoDirectory implements Directory against the users table (keyed by
// user_id).
type DynamoDirectory struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDirectory(client *dynamodb.Client, tableName string) *DynamoDirectory {
	return &DynamoDirectory{client: client, tableName: tableName}
}

func (d *DynamoDirectory) Lookup(ctx context.Context, userIDs []string) ([]model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	keys := make([]map[string]types.AttributeValue, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: id},
		})
	}
	out, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			d.tableName: {Keys: keys},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("batch get users: %w", err)
	}
	var users []model.User
	if err := attributevalue.UnmarshalListOfMaps(out.Responses[d.tableName], &users); err != nil {
		return nil, fmt.Errorf("unmarshal user records: %w", err)
	}
	return users, nil
}
