package aws

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogs struct {
	mu       sync.Mutex
	groupErr error
	streams  []string
	events   []string
}

func (f *fakeLogs) CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogs) PutRetentionPolicy(ctx context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, *in.LogStreamName)
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range in.LogEvents {
		f.events = append(f.events, *ev.Message)
	}
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func TestCloudWatchLogsClientFlushesOnClose(t *testing.T) {
	api := &fakeLogs{groupErr: &types.ResourceAlreadyExistsException{}}
	c, err := newCloudWatchLogsClient(context.Background(), api, "/whybuy/test", "dashboard-1")
	require.NoError(t, err)

	_, _ = c.Write([]byte(`{"msg":"one"}`))
	_, _ = c.Write([]byte(`{"msg":"two"}`))
	c.Close()

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"dashboard-1"}, api.streams)
	assert.Equal(t, []string{`{"msg":"one"}`, `{"msg":"two"}`}, api.events)

	// closed writers drop silently
	n, err := c.Write([]byte("late"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}
