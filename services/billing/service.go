// Package billing owns money movement for the studio: ledger posting, charge
// and payment recording, invoice runs, balances and aging, stored payment
// methods and autopay.
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/processor"

	"github.com/sirupsen/logrus"
)

// PostingPolicy decides when a processor payment earns its ledger credit.
type PostingPolicy string

const (
	// PostOptimistic credits the ledger as soon as the processor accepts the
	// request, whatever status it reports.
	PostOptimistic PostingPolicy = "optimistic"
	// PostSettled credits only succeeded intents; the rest are credited by
	// SyncPaymentStatus once the processor reports success.
	PostSettled PostingPolicy = "settled"
)

// ParsePostingPolicy accepts "optimistic" or "settled", case-insensitive.
func ParsePostingPolicy(s string) (PostingPolicy, error) {
	switch PostingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PostOptimistic:
		return PostOptimistic, nil
	case PostSettled:
		return PostSettled, nil
	}
	return "", fmt.Errorf("unknown ledger posting policy %q", s)
}

// Locker guards operations that must not run concurrently across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Publisher receives ledger events after the transaction that produced them commits.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Event announces a change to a family's ledger.
type Event struct {
	Type         string    `json:"type"`
	FamilyID     uint      `json:"family_id"`
	EntryIDs     []uint    `json:"entry_ids"`
	BalanceCents int64     `json:"balance_cents"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const EventLedgerPosted = "ledger.posted"

// Options configures a Service. Store and Processor are required.
type Options struct {
	Store            repository.Store
	Processor        processor.Processor
	Locker           Locker
	Publisher        Publisher
	Clock            func() time.Time
	ProcessorTimeout time.Duration
	Posting          PostingPolicy
	Currency         string
	Logger           *logrus.Entry
}

// Service implements the billing operations.
type Service struct {
	store     repository.Store
	processor processor.Processor
	locker    Locker
	publisher Publisher
	now       func() time.Time
	timeout   time.Duration
	posting   PostingPolicy
	currency  string
	log       *logrus.Entry
}

const (
	defaultProcessorTimeout = 20 * time.Second
	defaultCurrency         = "usd"
	invoiceRunLockKey       = "lock:invoice-run"
	invoiceRunLockTTL       = 10 * time.Minute
)

func NewService(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		processor: opts.Processor,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		now:       opts.Clock,
		timeout:   opts.ProcessorTimeout,
		posting:   opts.Posting,
		currency:  opts.Currency,
		log:       opts.Logger,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.timeout <= 0 {
		s.timeout = defaultProcessorTimeout
	}
	if s.posting == "" {
		s.posting = PostOptimistic
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.log == nil {
		s.log = logrus.WithField("component", "billing")
	}
	if s.processor == nil {
		s.processor = processor.Disabled{}
	}
	return s
}

// Store exposes the underlying store to the facades that compose billing.
func (s *Service) Store() repository.Store { return s.store }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Posting returns the configured ledger posting policy.
func (s *Service) Posting() PostingPolicy { return s.posting }

// processorCtx bounds a single processor call.
func (s *Service) processorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// announce publishes one event per family touched by a committed write.
// Failures are logged; the write already happened.
func (s *Service) announce(ctx context.Context, entries []models.LedgerEntry) {
	if s.publisher == nil || len(entries) == 0 {
		return
	}
	byFamily := map[uint][]uint{}
	var order []uint
	for _, e := range entries {
		if _, seen := byFamily[e.FamilyID]; !seen {
			order = append(order, e.FamilyID)
		}
		byFamily[e.FamilyID] = append(byFamily[e.FamilyID], e.ID)
	}
	for _, familyID := range order {
		bal, err := s.GetBalance(ctx, familyID)
		if err != nil {
			s.log.WithError(err).WithField("family_id", familyID).Warn("balance lookup for ledger event failed")
			continue
		}
		ev := Event{
			Type:         EventLedgerPosted,
			FamilyID:     familyID,
			EntryIDs:     byFamily[familyID],
			BalanceCents: bal.BalanceCents,
			OccurredAt:   s.now(),
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.WithError(err).WithField("family_id", familyID).Warn("ledger event publish failed")
		}
	}
}
