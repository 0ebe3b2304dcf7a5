package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
)

const (
	googleIDIndex = "google_id-index"
	userIDIndex   = "user_id-index"
)

// Client is the part of *dynamodb.Client used by Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Tables names the DynamoDB tables.
type Tables struct {
	Users     string
	Sessions  string
	APIKeys   string
	AuditLogs string
}

// Store implements store.Store on DynamoDB.
type Store struct {
	client Client
	tables Tables
}

var _ store.Store = (*Store)(nil)

func New(client Client, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

func key(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *Store) getItem(ctx context.Context, table string, k map[string]types.AttributeValue, out any) error {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item from %s: %w", table, err)
	}
	if res.Item == nil {
		return store.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal %s item: %w", table, err)
	}
	return nil
}

func (s *Store) putItem(ctx context.Context, table string, v any, condition string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", table, err)
	}
	in := &dynamodb.PutItemInput{TableName: aws.String(table), Item: item}
	if condition != "" {
		in.ConditionExpression = aws.String(condition)
	}
	if _, err := s.client.PutItem(ctx, in); err != nil {
		return fmt.Errorf("put item into %s: %w", table, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.getItem(ctx, s.tables.Users, key("user_id", id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Users),
		IndexName:              aws.String(googleIDIndex),
		KeyConditionExpression: aws.String("google_id = :gid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gid": &types.AttributeValueMemberS{Value: googleID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query users by google id: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, store.ErrNotFound
	}
	var u model.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	err := s.putItem(ctx, s.tables.Users, user, "attribute_not_exists(user_id)")
	if isConditionFailed(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) PutUser(ctx context.Context, user *model.User) error {
	return s.putItem(ctx, s.tables.Users, user, "")
}

// UpdateUserTokens writes access token and expiry in one UpdateItem so they
// never diverge.
func (s *Store) UpdateUserTokens(ctx context.Context, id string, upd store.TokenUpdate) error {
	expr := "SET access_token = :at, token_expiry = :exp, updated_at = :now"
	values := map[string]types.AttributeValue{
		":at":  &types.AttributeValueMemberS{Value: upd.AccessToken},
		":exp": timeAttr(upd.Expiry),
		":now": timeAttr(upd.UpdatedAt),
	}
	if upd.EncryptedRefreshToken != "" {
		expr += ", encrypted_refresh_token = :rt"
		values[":rt"] = &types.AttributeValueMemberS{Value: upd.EncryptedRefreshToken}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.Users),
		Key:                       key("user_id", id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("update user tokens: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	return s.putItem(ctx, s.tables.Sessions, sess, "attribute_not_exists(session_token)")
}

func (s *Store) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	if err := s.getItem(ctx, s.tables.Sessions, key("session_token", token), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) DeactivateSession(ctx context.Context, token string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Sessions),
		Key:                 key("session_token", token),
		UpdateExpression:    aws.String("SET active = :false"),
		ConditionExpression: aws.String("attribute_exists(session_token)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	return s.putItem(ctx, s.tables.APIKeys, k, "attribute_not_exists(key_hash)")
}

func (s *Store) GetAPIKey(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var k model.APIKey
	if err := s.getItem(ctx, s.tables.APIKeys, key("key_hash", keyHash), &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.APIKeys),
		IndexName:              aws.String(userIDIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query api keys: %w", err)
		}
		var batch []model.APIKey
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal api keys: %w", err)
		}
		keys = append(keys, batch...)
	}
	return keys, nil
}

func (s *Store) TouchAPIKey(ctx context.Context, keyHash string, usedAt time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.APIKeys),
		Key:                 key("key_hash", keyHash),
		UpdateExpression:    aws.String("SET last_used_at = :now"),
		ConditionExpression: aws.String("attribute_exists(key_hash)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": timeAttr(usedAt),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	return s.putItem(ctx, s.tables.AuditLogs, e, "attribute_not_exists(id)")
}
