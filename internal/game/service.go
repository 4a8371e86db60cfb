package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultStoreTimeout = 5 * time.Second

// Events receives engine outcomes for instrumentation. Implementations must
// be safe for concurrent use.
type Events interface {
	StatChanged(stat Stat)
	Purchased(kind PurchaseType, outcome string)
	ItemUsed(itemID string)
	PaymentEvent(outcome string)
}

type noopEvents struct{}

func (noopEvents) StatChanged(Stat) {}
func (noopEvents) Purchased(PurchaseType, string) {}
func (noopEvents) ItemUsed(string) {}
func (noopEvents) PaymentEvent(string) {}

type Options struct {
	Processor    PaymentProcessor
	Events       Events
	StoreTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	store        Store
	processor    PaymentProcessor
	events       Events
	log          *slog.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = noopEvents{}
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:        store,
		processor:    opts.Processor,
		events:       opts.Events,
		log:          logger,
		storeTimeout: opts.StoreTimeout,
		now:          func() time.Time { return opts.Now().UTC() },
	}
}

// PaymentsEnabled reports whether a processor is configured.
func (s *Service) PaymentsEnabled() bool {
	return s.processor != nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func newID() string {
	return uuid.NewString()
}
