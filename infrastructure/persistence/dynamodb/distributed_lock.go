package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/core/valueobjects"
)

// ErrLockHeld is returned when another owner holds an unexpired lease
var ErrLockHeld = errors.New("workspace lock already held")

// LockAPI is the subset of the DynamoDB client used for leases
type LockAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DistributedLock hands out per-workspace leases across processes using
// DynamoDB conditional writes. An expired lease may be taken over.
type DistributedLock struct {
	client         LockAPI
	tableName      string
	ownerID        string
	leaseDuration  time.Duration
	acquireTimeout time.Duration
	logger         *zap.Logger
}

// LockRecord represents a lease in DynamoDB
type LockRecord struct {
	PK         string `dynamodbav:"PK"`         // LOCK#WORKSPACE#<id>
	SK         string `dynamodbav:"SK"`         // LOCK
	LockID     string `dynamodbav:"LockID"`     // Unique lease identifier
	Owner      string `dynamodbav:"Owner"`      // Process identifier
	AcquiredAt int64  `dynamodbav:"AcquiredAt"` // Unix millis
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`  // Unix millis
	TTL        int64  `dynamodbav:"TTL"`        // Unix seconds for DynamoDB TTL
}

type lockKey struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

// NewDistributedLock creates a lock manager. Each process gets its own owner id.
func NewDistributedLock(client LockAPI, tableName string, leaseDuration, acquireTimeout time.Duration, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:         client,
		tableName:      tableName,
		ownerID:        uuid.NewString(),
		leaseDuration:  leaseDuration,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

func lockPK(workspaceID valueobjects.WorkspaceID) string {
	return fmt.Sprintf("LOCK#WORKSPACE#%d", workspaceID)
}

// Acquire waits for the workspace lease, retrying with backoff until the
// acquire timeout elapses or ctx is done.
func (dl *DistributedLock) Acquire(ctx context.Context, workspaceID valueobjects.WorkspaceID) (ports.Lease, error) {
	deadline := time.Now().Add(dl.acquireTimeout)
	retryInterval := 50 * time.Millisecond

	for {
		lease, err := dl.tryAcquire(ctx, workspaceID)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("timeout acquiring lock for workspace %d: %w", workspaceID, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

func (dl *DistributedLock) tryAcquire(ctx context.Context, workspaceID valueobjects.WorkspaceID) (*Lease, error) {
	now := time.Now()
	expiresAt := now.Add(dl.leaseDuration)
	record := LockRecord{
		PK:         lockPK(workspaceID),
		SK:         "LOCK",
		LockID:     uuid.NewString(),
		Owner:      dl.ownerID,
		AcquiredAt: now.UnixMilli(),
		ExpiresAt:  expiresAt.UnixMilli(),
		TTL:        expiresAt.Add(time.Hour).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal lock record: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK")).
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(now.UnixMilli())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build lock condition: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(dl.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return nil, ErrLockHeld
		}
		dl.logger.Error("Lock acquisition failed",
			zap.Int64("workspaceID", int64(workspaceID)),
			zap.String("errorCode", errorCode(err)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Workspace lock acquired",
		zap.Int64("workspaceID", int64(workspaceID)),
		zap.String("lockID", record.LockID),
		zap.Duration("lease", dl.leaseDuration),
	)

	return &Lease{lock: dl, workspaceID: workspaceID, lockID: record.LockID, expiresAt: expiresAt}, nil
}

func (dl *DistributedLock) release(ctx context.Context, workspaceID valueobjects.WorkspaceID, lockID string) error {
	key, err := attributevalue.MarshalMap(lockKey{PK: lockPK(workspaceID), SK: "LOCK"})
	if err != nil {
		return fmt.Errorf("marshal lock key: %w", err)
	}

	cond := expression.Name("LockID").Equal(expression.Value(lockID)).
		And(expression.Name("Owner").Equal(expression.Value(dl.ownerID)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build release condition: %w", err)
	}

	_, err = dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(dl.tableName),
		Key:                       key,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// The lease expired and was taken over; nothing left to release.
			dl.logger.Warn("Workspace lock no longer owned",
				zap.Int64("workspaceID", int64(workspaceID)),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}

	dl.logger.Debug("Workspace lock released",
		zap.Int64("workspaceID", int64(workspaceID)),
		zap.String("lockID", lockID),
	)
	return nil
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Lease is a held workspace lock
type Lease struct {
	lock        *DistributedLock
	workspaceID valueobjects.WorkspaceID
	lockID      string
	expiresAt   time.Time
}

// Release gives the lease back. An operation that outlived its lease may
// have overlapped with another holder, so that is logged.
func (l *Lease) Release(ctx context.Context) error {
	if l.IsExpired() {
		l.lock.logger.Warn("Workspace lock held past its lease",
			zap.Int64("workspaceID", int64(l.workspaceID)),
			zap.String("lockID", l.lockID),
			zap.Duration("overrun", time.Since(l.expiresAt)),
		)
	}
	return l.lock.release(ctx, l.workspaceID, l.lockID)
}

// IsExpired checks if the lease has expired
func (l *Lease) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}
