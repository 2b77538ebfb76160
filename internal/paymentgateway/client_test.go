package paymentgateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/paymentgateway"
)

var _ = Describe("HTTPGateway", func() {
	var (
		logger  *slog.Logger
		server  *httptest.Server
		handler http.HandlerFunc
		gateway *paymentgateway.HTTPGateway
		req     paymentgateway.ChargeRequest
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		gateway = paymentgateway.NewHTTPGateway(paymentgateway.Config{
			Name:    "acme",
			BaseURL: server.URL,
			APIKey:  "test-key",
		}, logger)
		req = paymentgateway.ChargeRequest{
			CorrelationID: "corr-1",
			Amount:        16500,
			Currency:      "USD",
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns a completed result on success", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/payments"))
			Expect(r.Header.Get("Idempotency-Key")).To(Equal("corr-1"))
			Expect(r.Header.Get("X-API-Key")).To(Equal("test-key"))

			var body map[string]interface{}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body["external_id"]).To(Equal("corr-1"))
			Expect(body["amount"]).To(BeNumerically("==", 16500))

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"id":"pay_123","external_id":"corr-1","status":"SUCCESS"}}`))
		}

		result, err := gateway.Charge(context.Background(), req)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Status).To(Equal(paymentgateway.StatusCompleted))
		Expect(result.Reference).To(Equal("pay_123"))
		Expect(string(result.Raw)).To(ContainSubstring("pay_123"))
	})

	It("reports pending charges as processing", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"pay_9","status":"PENDING"}}`))
		}

		result, err := gateway.Charge(context.Background(), req)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Status).To(Equal(paymentgateway.StatusProcessing))
	})

	It("maps a 402 to a declined payment", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"data":{"status":"DECLINED","failure_reason":"insufficient funds"}}`))
		}

		_, err := gateway.Charge(context.Background(), req)

		Expect(internal.IsType(err, internal.ErrorTypePaymentDeclined)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("insufficient funds"))
	})

	It("maps a FAILED body to a declined payment", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"pay_2","status":"FAILED"}}`))
		}

		_, err := gateway.Charge(context.Background(), req)

		Expect(internal.IsType(err, internal.ErrorTypePaymentDeclined)).To(BeTrue())
	})

	It("forwards metadata and refuses a settlement for the wrong amount", func() {
		req.Metadata = map[string]string{"booking_id": "7"}
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			var body struct {
				Metadata map[string]string `json:"metadata"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body.Metadata).To(HaveKeyWithValue("booking_id", "7"))

			_, _ = w.Write([]byte(`{"data":{"id":"pay_3","status":"SUCCESS","amount":1650}}`))
		}

		_, err := gateway.Charge(context.Background(), req)

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeExternal))
	})

	It("treats server errors as external failures", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}

		_, err := gateway.Charge(context.Background(), req)

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeExternal))
		Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayUnavailable))
	})

	It("gives up when the caller's deadline passes", func() {
		release := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := gateway.Charge(ctx, req)

		Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayTimeout))
	})

	It("rejects invalid requests before calling out", func() {
		called := false
		handler = func(w http.ResponseWriter, r *http.Request) { called = true }

		req.Amount = 0
		_, err := gateway.Charge(context.Background(), req)

		Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		Expect(called).To(BeFalse())
	})
})
