package redis_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/gsPatrick/nutri-lp/internal/ledger"
	ledgerredis "github.com/gsPatrick/nutri-lp/internal/ledger/redis"
)

var _ = Describe("Store", func() {
	var (
		ctx    context.Context
		server *miniredis.Miniredis
		client *goredis.Client
		store  *ledgerredis.Store
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		server = miniredis.RunT(GinkgoT())
		client = goredis.NewClient(&goredis.Options{Addr: server.Addr()})
		store = ledgerredis.NewStore(client, "test:payments")
	})

	AfterEach(func() {
		Expect(client.Close()).To(Succeed())
	})

	record := func(id, ref string, status ledger.Status, offset time.Duration) *ledger.Record {
		return &ledger.Record{
			GatewayPaymentID:  id,
			ExternalReference: ref,
			CustomerEmail:     "maria@example.com",
			BillingType:       ledger.BillingPix,
			Value:             decimal.RequireFromString("289.00"),
			Status:            status,
			CreatedAt:         base.Add(offset),
			UpdatedAt:         base.Add(offset),
		}
	}

	It("round trips a record", func() {
		// Given
		Expect(store.Put(ctx, record("pay_1", "GR-AAAAAAAA", ledger.StatusCreated, 0))).To(Succeed())

		// When
		got, err := store.Get(ctx, "pay_1")

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ExternalReference).To(Equal("GR-AAAAAAAA"))
		Expect(got.Value.StringFixed(2)).To(Equal("289.00"))
		Expect(got.CreatedAt.Equal(base)).To(BeTrue())
		Expect(server.Exists("test:payments:record:pay_1")).To(BeTrue())
	})

	It("maps a missing key to ErrNotFound", func() {
		_, err := store.Get(ctx, "nope")
		Expect(err).To(MatchError(ledger.ErrNotFound))
	})

	It("moves index entries when a status changes", func() {
		r := record("pay_1", "GR-AAAAAAAA", ledger.StatusCreated, 0)
		Expect(store.Put(ctx, r)).To(Succeed())

		r.Status = ledger.StatusConfirmed
		Expect(store.Put(ctx, r)).To(Succeed())

		created, err := store.ScanByField(ctx, ledger.FieldStatus, string(ledger.StatusCreated))
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeEmpty())

		confirmed, err := store.ScanByField(ctx, ledger.FieldStatus, string(ledger.StatusConfirmed))
		Expect(err).NotTo(HaveOccurred())
		Expect(confirmed).To(HaveLen(1))

		members, err := server.SMembers("test:payments:idx:status:CONFIRMED")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(ConsistOf("pay_1"))
	})

	It("refuses a write based on a stale read", func() {
		Expect(store.Put(ctx, record("pay_1", "GR-AAAAAAAA", ledger.StatusCreated, 0))).To(Succeed())
		first, err := store.Get(ctx, "pay_1")
		Expect(err).NotTo(HaveOccurred())
		second, err := store.Get(ctx, "pay_1")
		Expect(err).NotTo(HaveOccurred())

		first.Status = ledger.StatusReceived
		Expect(store.Put(ctx, first)).To(Succeed())
		second.Status = ledger.StatusConfirmed
		Expect(store.Put(ctx, second)).To(MatchError(ledger.ErrConflict))

		got, err := store.Get(ctx, "pay_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(ledger.StatusReceived))
		Expect(got.Version).To(Equal(int64(2)))

		members, err := server.SMembers("test:payments:idx:status:RECEIVED")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(ConsistOf("pay_1"))
		Expect(server.Exists("test:payments:idx:status:CONFIRMED")).To(BeFalse())
	})

	It("returns matches in creation order", func() {
		Expect(store.Put(ctx, record("pay_2", "GR-BBBBBBBB", ledger.StatusCreated, time.Minute))).To(Succeed())
		Expect(store.Put(ctx, record("pay_1", "GR-AAAAAAAA", ledger.StatusCreated, 0))).To(Succeed())

		records, err := store.ScanByField(ctx, ledger.FieldCustomerEmail, "maria@example.com")

		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].GatewayPaymentID).To(Equal("pay_1"))
	})

	It("skips index entries whose record disappeared", func() {
		Expect(store.Put(ctx, record("pay_1", "GR-AAAAAAAA", ledger.StatusCreated, 0))).To(Succeed())
		server.Del("test:payments:record:pay_1")

		records, err := store.ScanByField(ctx, ledger.FieldExternalReference, "GR-AAAAAAAA")

		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
	})

	It("rejects unknown fields", func() {
		_, err := store.ScanByField(ctx, ledger.Field("value"), "1")
		Expect(err).To(MatchError(ledger.ErrInvalidField))
	})

	It("reports connectivity", func() {
		Expect(store.Ping(ctx)).To(Succeed())

		down, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		addr := down.Addr()
		down.Close()
		offline := goredis.NewClient(&goredis.Options{Addr: addr, MaxRetries: -1})
		defer offline.Close()

		Expect(ledgerredis.NewStore(offline, "test").Ping(ctx)).NotTo(Succeed())
	})
})
