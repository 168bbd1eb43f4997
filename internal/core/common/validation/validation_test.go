package validation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/core/common/validation"
)

var _ = Describe("ValidationBuilder", func() {
	It("aggregates every failing field", func() {
		// Given
		v := validation.NewValidator()
		v.Field("name", "").Required()
		v.Field("email", "not-an-email").Required().Email()
		v.Field("phone", "11999999999").Required()

		// When
		err := v.Validate()

		// Then
		Expect(err).NotTo(BeNil())
		Expect(err.StatusCode).To(Equal(400))
		details, ok := err.Details.(errors.ValidationErrors)
		Expect(ok).To(BeTrue())
		Expect(details.Errors).To(HaveLen(2))
		Expect(details.Errors[0].Field).To(Equal("name"))
		Expect(details.Errors[1].Field).To(Equal("email"))
		Expect(details.Errors[1].Code).To(Equal(string(errors.ErrCodeInvalidEmail)))
	})

	It("reports only the first failure per field", func() {
		v := validation.NewValidator()
		v.Field("cpfCnpj", "").Required().DigitsLength(errors.ErrCodeInvalidDocument, 11, 14)

		err := v.Validate()

		Expect(err).NotTo(BeNil())
		details := err.Details.(errors.ValidationErrors)
		Expect(details.Errors).To(HaveLen(1))
		Expect(details.Errors[0].Code).To(Equal(string(errors.ErrCodeRequiredField)))
	})

	It("returns nil when every field passes", func() {
		v := validation.NewValidator()
		v.Field("email", "maria@example.com").Required().Email()
		v.Field("cpfCnpj", "123.456.789-09").DigitsLength(errors.ErrCodeInvalidDocument, 11, 14)
		v.Field("card.number", "4111 1111 1111 1111").Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 16)

		Expect(v.Validate()).To(BeNil())
	})

	DescribeTable("document digit lengths",
		func(doc string, valid bool) {
			v := validation.NewValidator()
			v.Field("cpfCnpj", doc).DigitsLength(errors.ErrCodeInvalidDocument, 11, 14)
			if valid {
				Expect(v.Validate()).To(BeNil())
			} else {
				Expect(v.Validate()).NotTo(BeNil())
			}
		},
		Entry("cpf", "12345678909", true),
		Entry("formatted cnpj", "12.345.678/0001-95", true),
		Entry("too short", "1234567", false),
		Entry("twelve digits", "123456789012", false),
	)

	DescribeTable("digits only",
		func(value string, valid bool) {
			v := validation.NewValidator()
			v.Field("card.cvv", value).Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 3, 4)
			err := v.Validate()
			if valid {
				Expect(err).To(BeNil())
				return
			}
			Expect(err).NotTo(BeNil())
			Expect(err.Details.(errors.ValidationErrors).Errors[0].Code).To(Equal(string(errors.ErrCodeInvalidFormat)))
		},
		Entry("plain", "123", true),
		Entry("spaced", "12 3", true),
		Entry("letter", "1a23", false),
		Entry("dashes", "1-23", false),
	)

	It("strips non digit characters", func() {
		Expect(validation.OnlyDigits("(11) 9 9999-0000")).To(Equal("11999990000"))
	})
})
