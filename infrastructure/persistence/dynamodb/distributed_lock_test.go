package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockLockAPI struct {
	mock.Mock
}

func (m *mockLockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.PutItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLockAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.DeleteItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func pkOf(item map[string]types.AttributeValue) string {
	if s, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func TestDistributedLock_AcquireAndRelease(t *testing.T) {
	// Arrange
	api := new(mockLockAPI)
	lock := NewDistributedLock(api, "locks", time.Minute, time.Second, zap.NewNop())

	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return *in.TableName == "locks" && pkOf(in.Item) == "LOCK#WORKSPACE#42" && in.ConditionExpression != nil
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return pkOf(in.Key) == "LOCK#WORKSPACE#42"
	})).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	// Act
	lease, err := lock.Acquire(context.Background(), 42)
	require.NoError(t, err)
	err = lease.Release(context.Background())

	// Assert
	assert.NoError(t, err)
	api.AssertExpectations(t)
}

func TestDistributedLock_RetriesWhileHeld(t *testing.T) {
	api := new(mockLockAPI)
	lock := NewDistributedLock(api, "locks", time.Minute, 2*time.Second, zap.NewNop())

	held := &types.ConditionalCheckFailedException{Message: new(string)}
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, held).Twice()
	api.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()

	lease, err := lock.Acquire(context.Background(), 1)

	require.NoError(t, err)
	assert.NotNil(t, lease)
	api.AssertNumberOfCalls(t, "PutItem", 3)
}

func TestDistributedLock_TimesOut(t *testing.T) {
	api := new(mockLockAPI)
	lock := NewDistributedLock(api, "locks", time.Minute, 100*time.Millisecond, zap.NewNop())

	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

	_, err := lock.Acquire(context.Background(), 1)

	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestDistributedLock_PropagatesServiceErrors(t *testing.T) {
	api := new(mockLockAPI)
	lock := NewDistributedLock(api, "locks", time.Minute, time.Second, zap.NewNop())

	boom := errors.New("throttled")
	api.On("PutItem", mock.Anything, mock.Anything).Return(nil, boom).Once()

	_, err := lock.Acquire(context.Background(), 1)

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestDistributedLock_ReleaseOfLostLeaseSucceeds(t *testing.T) {
	api := new(mockLockAPI)
	lock := NewDistributedLock(api, "locks", time.Minute, time.Second, zap.NewNop())

	api.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	lease, err := lock.Acquire(context.Background(), 3)
	require.NoError(t, err)

	assert.NoError(t, lease.Release(context.Background()))
}

func TestDistributedLock_ReleaseWarnsOnOverrun(t *testing.T) {
	api := new(mockLockAPI)
	core, logs := observer.New(zapcore.WarnLevel)
	lock := NewDistributedLock(api, "locks", 10*time.Millisecond, time.Second, zap.New(core))

	api.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Twice()
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Twice()

	lease, err := lock.Acquire(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, lease.(*Lease).IsExpired())
	require.NoError(t, lease.Release(context.Background()))
	assert.Zero(t, logs.FilterMessage("Workspace lock held past its lease").Len())

	lease, err = lock.Acquire(context.Background(), 8)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, lease.(*Lease).IsExpired())
	require.NoError(t, lease.Release(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Workspace lock held past its lease").Len())
}
