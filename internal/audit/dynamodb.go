package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/samber/do"
)

var ErrDuplicate = errors.New("audit record already exists")

type PutItemAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type DynamoDBStore struct {
	Client PutItemAPI
	Table  string
}

func NewDynamoDBStore(i *do.Injector) (Store, error) {
	return &DynamoDBStore{
		Client: do.MustInvoke[*dynamodb.Client](i),
		Table:  do.MustInvokeNamed[string](i, "table_name"),
	}, nil
}

func (s *DynamoDBStore) Put(ctx context.Context, rec Record) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("dynamodb").With("table", s.Table, "id", rec.ID)
	log.Info("writing audit record", "success", rec.Success)

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("put audit record: %w", err)
	}
	return nil
}
