package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Channel = "ops_alerts"

const (
	KindCompensationFailure   = "compensation_failure"
	KindCompensationAbandoned = "compensation_abandoned"
	KindRecordFailure         = "transaction_record_failure"
)

var alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ops_alerts_total",
	Help: "Operator alerts raised, by kind.",
}, []string{"kind"})

type Alert struct {
	Kind      string          `json:"kind"`
	Reference string          `json:"reference"`
	WalletID  string          `json:"wallet_id,omitempty"`
	PotID     string          `json:"pot_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	Attempts  int             `json:"attempts,omitempty"`
	RaisedAt  time.Time       `json:"raised_at"`
}

// Alerter surfaces conditions that need a human, such as money stranded by a
// failed compensation.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// Publisher logs every alert at error level, counts it, and publishes it on
// the ops_alerts Redis channel when a client is configured.
type Publisher struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewPublisher(rdb redis.UniversalClient, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger.Named("alert")}
}

func (p *Publisher) Alert(ctx context.Context, a Alert) {
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now().UTC()
	}
	alertsTotal.WithLabelValues(a.Kind).Inc()
	p.logger.Error("operator alert",
		zap.String("kind", a.Kind),
		zap.String("reference", a.Reference),
		zap.String("wallet_id", a.WalletID),
		zap.String("pot_id", a.PotID),
		zap.String("amount", a.Amount.String()),
		zap.Int("attempts", a.Attempts),
		zap.String("message", a.Message))

	if p.rdb == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		p.logger.Error("marshal alert", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Error("publish alert", zap.Error(err), zap.String("reference", a.Reference))
	}
}
