package activity

import (
	"context"
	"encoding/json"
	"time"

	awspkg "whybuy-dashboard/pkg/aws"

	"go.uber.org/zap"
)

// Event types published for operator actions.
const (
	PipelineStarted = "pipeline.started"
	ImageFlagged    = "image.flagged"
	ProductPushed   = "product.pushed"
	ProductImported = "product.imported"
	PromptUpdated   = "prompt.updated"
)

// Event is one operator action.
type Event struct {
	Type       string            `json:"type"`
	BrandID    string            `json:"brand_id"`
	UserID     string            `json:"user_id"`
	ProductIDs []string          `json:"product_ids,omitempty"`
	JobID      string            `json:"job_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	At         time.Time         `json:"at"`
}

// Recorder takes operator events. Implementations must not block the caller.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// SNSRecorder publishes events to an SNS topic in the background.
type SNSRecorder struct {
	sns      awspkg.SNSPublisher
	topicArn string
	log      *zap.Logger
	timeout  time.Duration
}

func NewSNSRecorder(sns awspkg.SNSPublisher, topicArn string, log *zap.Logger) *SNSRecorder {
	return &SNSRecorder{sns: sns, topicArn: topicArn, log: log, timeout: 5 * time.Second}
}

func (r *SNSRecorder) Record(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("encode activity event", zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		attrs := map[string]string{"event_type": ev.Type, "brand_id": ev.BrandID}
		if err := r.sns.Publish(ctx, r.topicArn, body, attrs); err != nil {
			r.log.Warn("publish activity event", zap.String("type", ev.Type), zap.Error(err))
		}
	}()
}

// LogRecorder writes events to the log. Used when no topic is configured.
type LogRecorder struct {
	log *zap.Logger
}

func NewLogRecorder(log *zap.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(_ context.Context, ev Event) {
	r.log.Info("activity",
		zap.String("type", ev.Type),
		zap.String("brand_id", ev.BrandID),
		zap.String("user_id", ev.UserID),
		zap.Strings("product_ids", ev.ProductIDs))
}
