package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gsPatrick/nutri-lp/internal/core/events"
)

var _ = Describe("KafkaForwarder", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	It("sends the event keyed by payment id", func() {
		// Given
		producer := mocks.NewSyncProducer(GinkgoT(), events.NewKafkaProducerConfig())
		var sent *sarama.ProducerMessage
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			sent = msg
			return nil
		})
		forwarder := events.NewKafkaForwarderWithProducer(producer, "payment-events", logger)
		evt := events.NewPaymentEvent(events.EventTypeAccessGranted, events.PaymentChange{
			PaymentID:         "pay_123",
			ExternalReference: "GR-ABCDEF12",
			Status:            "RECEIVED",
		})

		// When
		err := forwarder.Handle(context.Background(), evt)

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(sent.Topic).To(Equal("payment-events"))
		key, _ := sent.Key.Encode()
		Expect(string(key)).To(Equal("pay_123"))
		body, _ := sent.Value.Encode()
		var decoded map[string]interface{}
		Expect(json.Unmarshal(body, &decoded)).To(Succeed())
		Expect(decoded["type"]).To(Equal(events.EventTypeAccessGranted))
		Expect(decoded["external_reference"]).To(Equal("GR-ABCDEF12"))
		Expect(forwarder.Close()).To(Succeed())
	})

	It("surfaces producer failures", func() {
		producer := mocks.NewSyncProducer(GinkgoT(), events.NewKafkaProducerConfig())
		producer.ExpectSendMessageAndFail(errors.New("broker down"))
		forwarder := events.NewKafkaForwarderWithProducer(producer, "payment-events", logger)

		err := forwarder.Handle(context.Background(), events.NewPaymentEvent(events.EventTypeStatusChanged, events.PaymentChange{PaymentID: "pay_1"}))

		Expect(err).To(MatchError(ContainSubstring("broker down")))
		Expect(forwarder.Close()).To(Succeed())
	})
})
