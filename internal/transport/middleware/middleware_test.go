package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("filterSensitiveBody", func() {
	It("masks card and document fields at any depth", func() {
		body := `{"customer":{"name":"Maria","cpfCnpj":"12345678909"},"card":{"number":"5162306000000008","cvv":"318","holderName":"MARIA"}}`

		var out map[string]interface{}
		Expect(json.Unmarshal([]byte(filterSensitiveBody([]byte(body))), &out)).To(Succeed())

		customer := out["customer"].(map[string]interface{})
		card := out["card"].(map[string]interface{})
		Expect(customer["name"]).To(Equal("Maria"))
		Expect(customer["cpfCnpj"]).To(Equal("[FILTERED]"))
		Expect(card["number"]).To(Equal("[FILTERED]"))
		Expect(card["cvv"]).To(Equal("[FILTERED]"))
		Expect(card["holderName"]).To(Equal("[FILTERED]"))
	})

	It("omits QR code images", func() {
		body := `{"pix":{"qrCodeBase64":"iVBORw0KGgo=","copyPaste":"000201"}}`
		Expect(filterSensitiveBody([]byte(body))).To(ContainSubstring(`"qrCodeBase64":"[OMITTED]"`))
	})

	It("hides non JSON bodies that mention secrets", func() {
		Expect(filterSensitiveBody([]byte("token=abc"))).To(Equal("[FILTERED - Contains sensitive data]"))
		Expect(filterSensitiveBody([]byte("hello"))).To(Equal("hello"))
	})

	It("masks credential headers", func() {
		headers := http.Header{}
		headers.Set("access-token", "whsec")
		headers.Set("Content-Type", "application/json")

		filtered := filterSensitiveHeaders(headers)
		Expect(filtered["Access-Token"]).To(Equal("[FILTERED]"))
		Expect(filtered["Content-Type"]).To(Equal("application/json"))
	})
})

var _ = Describe("CORS", func() {
	handler := CORS("http://localhost:3000/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	It("allows the frontend origin with credentials", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/payments/config", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		Expect(recorder.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
		Expect(recorder.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
	})

	It("does not allow other origins", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/payments/config", nil)
		req.Header.Set("Origin", "https://evil.example")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		Expect(recorder.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("turns a panic into a 500 envelope", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		Expect(recorder.Body.String()).To(ContainSubstring(`"code":"INTERNAL_ERROR"`))
	})
})

var _ = Describe("RequestID", func() {
	It("echoes the caller's trace id", func() {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, "trace-123")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		Expect(recorder.Header().Get(TraceHeader)).To(Equal("trace-123"))
	})

	It("mints one when missing", func() {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(recorder.Header().Get(TraceHeader)).To(HaveLen(36))
	})
})
