package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/gsPatrick/nutri-lp/internal/core/events"
	"github.com/gsPatrick/nutri-lp/internal/ledger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.PaymentEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(*events.PaymentEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type failingStore struct {
	ledger.Store
	err error
}

func (f *failingStore) Get(ctx context.Context, id string) (*ledger.Record, error) {
	return nil, f.err
}

// interleavingStore runs between once after its first read, simulating another
// process writing the same record in the gap.
type interleavingStore struct {
	ledger.Store
	once    sync.Once
	between func()
}

func (s *interleavingStore) Get(ctx context.Context, id string) (*ledger.Record, error) {
	record, err := s.Store.Get(ctx, id)
	s.once.Do(s.between)
	return record, err
}

// conflictingStore always reports a concurrent write.
type conflictingStore struct {
	ledger.Store
	puts int
}

func (s *conflictingStore) Put(ctx context.Context, record *ledger.Record) error {
	s.puts++
	return ledger.ErrConflict
}

var _ = Describe("Ledger", func() {
	var (
		ctx       context.Context
		store     *ledger.MemoryStore
		publisher *recordingPublisher
		l         *ledger.Ledger
		now       time.Time
		meta      ledger.Metadata
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = ledger.NewMemoryStore()
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		l = ledger.New(store, publisher, logger).WithClock(func() time.Time { return now })
		meta = ledger.Metadata{
			ExternalReference: "GR-1A2B3C4D",
			CustomerID:        "cus_1",
			CustomerEmail:     "maria@example.com",
			BillingType:       ledger.BillingPix,
			Value:             decimal.RequireFromString("289.00"),
		}
	})

	Describe("UpsertOnCreate", func() {
		It("inserts a CREATED record", func() {
			// When
			record, err := l.UpsertOnCreate(ctx, "pay_1", meta)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(ledger.StatusCreated))
			Expect(record.CreatedAt).To(Equal(now))
			Expect(record.Value.StringFixed(2)).To(Equal("289.00"))
		})

		It("is idempotent", func() {
			first, err := l.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Minute)
			second, err := l.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			records, _ := store.ScanByField(ctx, ledger.FieldExternalReference, meta.ExternalReference)
			Expect(records).To(HaveLen(1))
		})

		It("does not regress a record a webhook already confirmed", func() {
			_, err := l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{PaymentID: "pay_1", BillingType: ledger.BillingPix})
			Expect(err).NotTo(HaveOccurred())

			record, err := l.UpsertOnCreate(ctx, "pay_1", meta)

			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(ledger.StatusConfirmed))
			Expect(record.ExternalReference).To(Equal(meta.ExternalReference))
			Expect(record.CustomerEmail).To(Equal(meta.CustomerEmail))
		})

		It("rejects a reference bound to another payment", func() {
			_, err := l.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())

			_, err = l.UpsertOnCreate(ctx, "pay_2", meta)
			Expect(err).To(MatchError(ledger.ErrDuplicateReference))
		})

		It("wraps store failures", func() {
			broken := ledger.New(&failingStore{Store: store, err: errors.New("disk full")}, nil,
				slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))

			_, err := broken.UpsertOnCreate(ctx, "pay_1", ledger.Metadata{})
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})
	})

	Describe("ApplyEvent", func() {
		BeforeEach(func() {
			_, err := l.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())
		})

		It("confirms a created record and grants access", func() {
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Changed).To(BeTrue())
			Expect(outcome.Previous).To(Equal(ledger.StatusCreated))
			Expect(outcome.Current).To(Equal(ledger.StatusConfirmed))
			Expect(*outcome.Record.ConfirmedAt).To(Equal(now))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeStatusChanged, events.EventTypeAccessGranted}))
		})

		It("keeps RECEIVED when CONFIRMED arrives after it", func() {
			credit := now.Add(48 * time.Hour)
			_, err := l.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{CreditDate: &credit})
			Expect(err).NotTo(HaveOccurred())

			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Changed).To(BeFalse())
			record, err := l.Get(ctx, "pay_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(ledger.StatusReceived))
			Expect(record.ConfirmedAt).NotTo(BeNil())
			Expect(*record.CreditDate).To(Equal(credit))
		})

		It("moves CONFIRMED to RECEIVED without granting access twice", func() {
			_, err := l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
			Expect(err).NotTo(HaveOccurred())
			_, err = l.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{})
			Expect(err).NotTo(HaveOccurred())

			record, _ := l.Get(ctx, "pay_1")
			Expect(record.Status).To(Equal(ledger.StatusReceived))
			Expect(record.ReceivedAt).NotTo(BeNil())
			Expect(publisher.types()).To(Equal([]string{
				events.EventTypeStatusChanged, events.EventTypeAccessGranted,
				events.EventTypeStatusChanged,
			}))
		})

		It("ignores unknown event types", func() {
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventType("PAYMENT_BANK_SLIP_VIEWED"), ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Ignored).To(BeTrue())
			record, _ := l.Get(ctx, "pay_1")
			Expect(record.Status).To(Equal(ledger.StatusCreated))
		})

		It("logs risk analysis approvals without changing state", func() {
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventApprovedByRiskAnalysis, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Changed).To(BeFalse())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("revokes access on chargeback", func() {
			_, _ = l.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{})
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventChargebackRequested, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Current).To(Equal(ledger.StatusChargebackRequested))
			Expect(publisher.types()).To(ContainElement(events.EventTypeAccessRevoked))
		})

		It("keeps access on partial refund", func() {
			_, _ = l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventPartiallyRefunded, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Current).To(Equal(ledger.StatusPartiallyRefunded))
			Expect(publisher.types()).NotTo(ContainElement(events.EventTypeAccessRevoked))
		})

		It("does not touch a paid record on overdue", func() {
			_, _ = l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
			outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventOverdue, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Changed).To(BeFalse())
			Expect(outcome.Current).To(Equal(ledger.StatusConfirmed))
		})

		Context("refunds", func() {
			It("are irreversible", func() {
				// Given
				_, _ = l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
				outcome, err := l.ApplyEvent(ctx, "pay_1", ledger.EventRefunded, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Record).To(BeNil())
				Expect(publisher.types()).To(ContainElement(events.EventTypeAccessRevoked))

				// When
				for _, evt := range []ledger.EventType{ledger.EventCreated, ledger.EventConfirmed, ledger.EventReceived} {
					o, err := l.ApplyEvent(ctx, "pay_1", evt, ledger.Payload{PaymentID: "pay_1"})
					Expect(err).NotTo(HaveOccurred())
					Expect(o.Ignored).To(BeTrue())
				}
				_, err = l.UpsertOnCreate(ctx, "pay_1", meta)
				Expect(err).NotTo(HaveOccurred())

				// Then
				_, err = l.Get(ctx, "pay_1")
				Expect(err).To(MatchError(ledger.ErrNotFound))
				_, err = l.LookupByExternalReference(ctx, meta.ExternalReference)
				Expect(err).To(MatchError(ledger.ErrNotFound))
			})

			It("store a tombstone for unknown payments", func() {
				_, err := l.ApplyEvent(ctx, "pay_ghost", ledger.EventRefunded, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())

				_, err = l.ApplyEvent(ctx, "pay_ghost", ledger.EventReceived, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())

				_, err = l.Get(ctx, "pay_ghost")
				Expect(err).To(MatchError(ledger.ErrNotFound))
			})
		})
	})

	Describe("notifications for unknown payments", func() {
		It("creates the record from a RECEIVED payload", func() {
			payload := ledger.Payload{
				PaymentID:         "pay_9",
				ExternalReference: "GR-99999999",
				CustomerID:        "cus_9",
				BillingType:       ledger.BillingPix,
				Value:             decimal.RequireFromString("5.00"),
			}

			outcome, err := l.ApplyEvent(ctx, "pay_9", ledger.EventReceived, payload)

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Created).To(BeTrue())
			Expect(outcome.Current).To(Equal(ledger.StatusReceived))
			record, err := l.LookupByExternalReference(ctx, "GR-99999999")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.GatewayPaymentID).To(Equal("pay_9"))
			Expect(publisher.types()).To(ContainElement(events.EventTypeAccessGranted))
		})

		It("ignores transitions that need an existing record", func() {
			outcome, err := l.ApplyEvent(ctx, "pay_9", ledger.EventOverdue, ledger.Payload{})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Ignored).To(BeTrue())
			_, err = store.Get(ctx, "pay_9")
			Expect(err).To(MatchError(ledger.ErrNotFound))
		})
	})

	It("lists pending records", func() {
		_, _ = l.UpsertOnCreate(ctx, "pay_1", meta)
		_, _ = l.UpsertOnCreate(ctx, "pay_2", ledger.Metadata{ExternalReference: "GR-00000002"})
		_, _ = l.ApplyEvent(ctx, "pay_2", ledger.EventConfirmed, ledger.Payload{})
		_, _ = l.UpsertOnCreate(ctx, "pay_3", ledger.Metadata{ExternalReference: "GR-00000003"})
		_, _ = l.ApplyEvent(ctx, "pay_3", ledger.EventOverdue, ledger.Payload{})

		pending, err := l.Pending(ctx)

		Expect(err).NotTo(HaveOccurred())
		ids := []string{}
		for _, r := range pending {
			ids = append(ids, r.GatewayPaymentID)
		}
		Expect(ids).To(ConsistOf("pay_1", "pay_3"))
	})

	It("serializes concurrent events for the same payment", func() {
		_, err := l.UpsertOnCreate(ctx, "pay_1", meta)
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())
			}()
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := l.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		record, err := l.Get(ctx, "pay_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Status).To(Equal(ledger.StatusReceived))

		granted := 0
		for _, t := range publisher.types() {
			if t == events.EventTypeAccessGranted {
				granted++
			}
		}
		Expect(granted).To(Equal(1))
	})

	Describe("ledgers in separate processes over one store", func() {
		It("does not regress a record another writer received in the meantime", func() {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
			server := ledger.New(store, nil, logger)
			_, err := server.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())

			shared := &interleavingStore{Store: store, between: func() {
				_, err := server.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{})
				Expect(err).NotTo(HaveOccurred())
			}}
			worker := ledger.New(shared, nil, logger)

			outcome, err := worker.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Changed).To(BeFalse())

			record, err := server.Get(ctx, "pay_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(ledger.StatusReceived))
			Expect(record.ReceivedAt).NotTo(BeNil())
			Expect(record.ConfirmedAt).NotTo(BeNil())
		})

		It("does not overwrite a record inserted by another writer", func() {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
			other := ledger.New(store, nil, logger)
			shared := &interleavingStore{Store: store, between: func() {
				_, err := other.ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{ExternalReference: "GR-1A2B3C4D"})
				Expect(err).NotTo(HaveOccurred())
			}}

			record, err := ledger.New(shared, nil, logger).UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(ledger.StatusReceived))
			Expect(record.CustomerEmail).To(Equal("maria@example.com"))
		})

		It("gives up after repeated conflicts", func() {
			_, err := l.UpsertOnCreate(ctx, "pay_1", meta)
			Expect(err).NotTo(HaveOccurred())

			conflicting := &conflictingStore{Store: store}
			_, err = ledger.New(conflicting, nil, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))).
				ApplyEvent(ctx, "pay_1", ledger.EventReceived, ledger.Payload{})
			Expect(err).To(MatchError(ledger.ErrConflict))
			Expect(conflicting.puts).To(Equal(5))
		})
	})

	It("advances the version on every write", func() {
		_, err := l.UpsertOnCreate(ctx, "pay_1", meta)
		Expect(err).NotTo(HaveOccurred())
		_, err = l.ApplyEvent(ctx, "pay_1", ledger.EventConfirmed, ledger.Payload{})
		Expect(err).NotTo(HaveOccurred())

		record, err := store.Get(ctx, "pay_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Version).To(Equal(int64(2)))

		stale := record.Clone()
		stale.Version = 1
		Expect(store.Put(ctx, stale)).To(MatchError(ledger.ErrConflict))
	})
})

var _ = DescribeTable("EventForGatewayStatus",
	func(status string, want ledger.EventType, ok bool) {
		got, found := ledger.EventForGatewayStatus(status)
		Expect(found).To(Equal(ok))
		Expect(got).To(Equal(want))
	},
	Entry("confirmed", "CONFIRMED", ledger.EventConfirmed, true),
	Entry("received", "RECEIVED", ledger.EventReceived, true),
	Entry("received in cash", "RECEIVED_IN_CASH", ledger.EventReceived, true),
	Entry("overdue", "OVERDUE", ledger.EventOverdue, true),
	Entry("refunded", "REFUNDED", ledger.EventRefunded, true),
	Entry("risk analysis", "AWAITING_RISK_ANALYSIS", ledger.EventAwaitingRiskAnalysis, true),
	Entry("chargeback", "CHARGEBACK_REQUESTED", ledger.EventChargebackRequested, true),
	Entry("pending", "PENDING", ledger.EventType(""), false),
)
