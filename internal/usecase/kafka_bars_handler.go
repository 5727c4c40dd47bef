package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"LiqPool/internal/domain/models"
	domrepo "LiqPool/internal/domain/repository"
	mid "LiqPool/internal/middleware"
	pkgkafka "LiqPool/pkg/kafka"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KafkaBarsHandler decodes base bars from the bars topic and submits them to
// the gate.
type KafkaBarsHandler struct {
	topic   string
	gate    *mid.BarGate
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, gate *mid.BarGate, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, gate: gate, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v}, t is the open time in
// seconds or milliseconds
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		O      float64 `json:"o"`
		H      float64 `json:"h"`
		L      float64 `json:"l"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}
	ts := time.Unix(m.T, 0)
	if m.T > 1e11 {
		ts = time.UnixMilli(m.T)
	}
	bar := models.Bar{
		Symbol: strings.ToUpper(m.Symbol),
		Ts:     ts.UTC(),
		Open:   m.O,
		High:   m.H,
		Low:    m.L,
		Close:  m.C,
		Volume: m.V,
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bar.Ts).Seconds())

	err := h.gate.Submit(ctx, bar)
	switch {
	case err == nil:
		return nil
	case models.IsValidationError(err):
		return pkgkafka.Permanent(err)
	case errors.Is(err, mid.ErrGateStopped):
		return pkgkafka.Permanent(err)
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
