package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/digicoders/feeledger/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
})

var _ = Describe("CORS", func() {
	It("echoes an allowed origin", func() {
		h := CORS("https://office.digicoders.in, https://admin.digicoders.in")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
		req.Header.Set("Origin", "https://admin.digicoders.in")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.digicoders.in"))
		Expect(rec.Header().Get("Access-Control-Expose-Headers")).To(Equal(TraceIDHeader))
	})

	It("leaves unknown origins without cors headers", func() {
		h := CORS("https://office.digicoders.in")(okHandler)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("answers preflight requests without calling the handler", func() {
		called := false
		h := CORS("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(called).To(BeFalse())
		Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("turns a panic into a 500 envelope", func() {
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := RecoveryMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("success", false))
		Expect(body).To(HaveKeyWithValue("message", "Internal server error"))
	})
})

var _ = Describe("RequestID", func() {
	It("reuses the caller's trace id", func() {
		var scoped bool
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, scoped = logger.Scoped(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceIDHeader, "trace-123")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceIDHeader)).To(Equal("trace-123"))
		Expect(scoped).To(BeTrue())
	})

	It("generates one when none is sent", func() {
		rec := httptest.NewRecorder()
		RequestID(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(TraceIDHeader)).To(HaveLen(36))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	It("masks credentials in request bodies and headers", func() {
		lg := slog.New(slog.NewJSONHandler(buf, nil))
		h := LoggingMiddleware(lg)(okHandler)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"cashier@digicoders.in","password":"hunter22"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer abc.def")

		h.ServeHTTP(httptest.NewRecorder(), req)

		Expect(buf.String()).NotTo(ContainSubstring("hunter22"))
		Expect(buf.String()).NotTo(ContainSubstring("abc.def"))
		Expect(buf.String()).To(ContainSubstring("cashier@digicoders.in"))
	})

	It("leaves the request body readable for the handler", func() {
		lg := slog.New(slog.NewJSONHandler(buf, nil))
		var got string
		h := LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			got = string(b)
		}))
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"3000"}`))
		req.Header.Set("Content-Type", "application/json")

		h.ServeHTTP(httptest.NewRecorder(), req)

		Expect(got).To(Equal(`{"amount":"3000"}`))
	})

	It("logs client errors at warn level", func() {
		lg := slog.New(slog.NewJSONHandler(buf, nil))
		h := LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

		Expect(buf.String()).To(ContainSubstring(`"level":"WARN"`))
		Expect(buf.String()).To(ContainSubstring(`"status_code":404`))
	})
})

var _ = Describe("filterSensitiveJSON", func() {
	It("masks nested keys", func() {
		in := map[string]interface{}{
			"user": map[string]interface{}{"refresh_token": "x", "email": "a@b.c"},
			"list": []interface{}{map[string]interface{}{"api_key": "k"}},
		}
		out := filterSensitiveJSON(in).(map[string]interface{})
		Expect(out["user"]).To(HaveKeyWithValue("refresh_token", "[FILTERED]"))
		Expect(out["user"]).To(HaveKeyWithValue("email", "a@b.c"))
		Expect(out["list"].([]interface{})[0]).To(HaveKeyWithValue("api_key", "[FILTERED]"))
	})
})
