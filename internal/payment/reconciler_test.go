package payment_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gsPatrick/nutri-lp/internal/ledger"
	"github.com/gsPatrick/nutri-lp/internal/payment"
	"github.com/gsPatrick/nutri-lp/internal/paymentgateway"
)

var _ = Describe("Reconciler", func() {
	var (
		ctx        context.Context
		gw         *fakeGateway
		svc        *payment.Service
		l          *ledger.Ledger
		reconciler *payment.Reconciler
	)

	create := func() string {
		resp, err := svc.CreatePixPayment(ctx, &payment.PixPaymentRequest{Customer: validCustomer()})
		Expect(err).ToNot(HaveOccurred())
		return resp.PaymentID
	}

	BeforeEach(func() {
		ctx = context.Background()
		gw = newFakeGateway()
		svc, l = newTestService(gw, true)
		reconciler = payment.NewReconciler(svc, 2, quietLogger())
	})

	It("settles pending records the gateway has received", func() {
		paid := create()
		waiting := create()
		gw.settle(paid, "RECEIVED")

		summary, err := reconciler.RunOnce(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Checked).To(Equal(2))
		Expect(summary.Changed).To(Equal(1))
		Expect(summary.Failed).To(BeZero())

		record, err := l.Get(ctx, paid)
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Status).To(Equal(ledger.StatusReceived))

		record, err = l.Get(ctx, waiting)
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Status).To(Equal(ledger.StatusCreated))
	})

	It("counts gateway failures without stopping", func() {
		create()
		create()
		gw.getErr = &paymentgateway.Error{Message: "gateway request failed"}

		summary, err := reconciler.RunOnce(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Failed).To(Equal(2))
	})

	It("skips settled records on the next pass", func() {
		paid := create()
		gw.settle(paid, "RECEIVED")
		_, err := reconciler.RunOnce(ctx)
		Expect(err).ToNot(HaveOccurred())

		summary, err := reconciler.RunOnce(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.Checked).To(BeZero())
	})

	It("stops when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		Expect(reconciler.Run(cancelled, 0)).To(Succeed())
	})
})
