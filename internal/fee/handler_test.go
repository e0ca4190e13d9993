package fee_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	"github.com/digicoders/feeledger/internal/fee"
	feePostgres "github.com/digicoders/feeledger/internal/fee/postgres"
	"github.com/digicoders/feeledger/internal/filestore"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      json.RawMessage `json:"error"`
	Pagination *fee.Pagination `json:"pagination"`
}

var _ = Describe("Fee Handler Integration", func() {
	var (
		db     *gorm.DB
		router *chi.Mux
		reg    *registrationDatamodel.Registration
	)

	do := func(method, target string, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, envelope) {
		if body == nil {
			body = &bytes.Buffer{}
		}
		req := httptest.NewRequest(method, target, body)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		return rec, env
	}

	postJSON := func(target, body string) (*httptest.ResponseRecorder, envelope) {
		return do(http.MethodPost, target, bytes.NewBufferString(body), "application/json")
	}

	BeforeEach(func() {
		gdb, sdb := openLedgerDB()
		db = gdb

		files, err := filestore.NewLocalStore(internal.StorageConfig{
			UploadDir:      GinkgoT().TempDir(),
			PublicBaseURL:  "/uploads",
			MaxUploadBytes: 1 << 20,
		}, testLogger)
		Expect(err).NotTo(HaveOccurred())

		service := fee.NewService(
			feePostgres.NewFeeRepository(db),
			feePostgres.NewQueryRepository(sdb),
			files,
			serial.NewGenerator(""),
			nil,
			fee.Options{Retry: txretry.Policy{MaxRetries: 2, Backoff: time.Millisecond}},
			testLogger,
		)
		handler := fee.NewHandler(service, 1<<20)

		router = chi.NewRouter()
		router.Route("/payments", func(r chi.Router) {
			r.Post("/", handler.RecordPayment)
			r.Get("/", handler.ListPayments)
			r.Get("/{id}", handler.GetFeeByID)
			r.Get("/{id}/history", handler.GetPaymentHistory)
			r.Patch("/{id}/status", handler.ChangeStatus)
			r.Delete("/{id}", handler.DeletePayment)
		})

		reg = seedRegistration(db, "DCT-2025-010", "Meera Iyer", "meera@example.com", "IT", 10000)
	})

	Describe("POST /payments", func() {
		It("records a JSON payment", func() {
			rec, env := postJSON("/payments", `{"registration_id": `+strconv.FormatInt(reg.ID, 10)+`, "amount": 3000, "mode": "cash"}`)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(env.Success).To(BeTrue())
			Expect(env.Message).To(Equal("Payment recorded successfully"))

			var entry fee.Fee
			Expect(json.Unmarshal(env.Data, &entry)).To(Succeed())
			Expect(entry.ReceiptNo).To(MatchRegexp(`^DCTREC-\d{4}-\d{3}$`))
			Expect(entry.DueAmount).To(BeAmount("7000"))
		})

		It("records a multipart payment with a proof image", func() {
			body := &bytes.Buffer{}
			form := multipart.NewWriter(body)
			Expect(form.WriteField("registration_id", strconv.FormatInt(reg.ID, 10))).To(Succeed())
			Expect(form.WriteField("amount", "2500.50")).To(Succeed())
			Expect(form.WriteField("mode", "online")).To(Succeed())
			Expect(form.WriteField("tnx_id", "UPI-MULTI-1")).To(Succeed())
			part, err := form.CreateFormFile("image", "proof.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("jpeg-bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(form.Close()).To(Succeed())

			rec, env := do(http.MethodPost, "/payments", body, form.FormDataContentType())

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var entry fee.Fee
			Expect(json.Unmarshal(env.Data, &entry)).To(Succeed())
			Expect(entry.Amount).To(BeAmount("2500.50"))
			Expect(entry.TnxID).To(HaveValue(Equal("UPI-MULTI-1")))
			Expect(entry.ImageURL).To(HaveValue(HavePrefix("/uploads/")))
		})

		It("reports malformed multipart fields as validation errors", func() {
			body := &bytes.Buffer{}
			form := multipart.NewWriter(body)
			Expect(form.WriteField("registration_id", "abc")).To(Succeed())
			Expect(form.WriteField("amount", "lots")).To(Succeed())
			Expect(form.Close()).To(Succeed())

			rec, env := do(http.MethodPost, "/payments", body, form.FormDataContentType())

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Success).To(BeFalse())
			Expect(string(env.Error)).To(ContainSubstring("registration_id"))
			Expect(string(env.Error)).To(ContainSubstring("amount"))
		})

		It("rejects an undecodable JSON body", func() {
			rec, env := postJSON("/payments", `{"amount":`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(env.Message).To(Equal("invalid request body"))
		})

		It("answers 400 with DUPLICATE_TRANSACTION for a reused transaction id", func() {
			payload := `{"registration_id": ` + strconv.FormatInt(reg.ID, 10) + `, "amount": 100, "mode": "online", "tnx_id": "UPI-9"}`
			rec, _ := postJSON("/payments", payload)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec, env := postJSON("/payments", payload)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(string(env.Error)).To(ContainSubstring(`"type":"DUPLICATE_TRANSACTION"`))
		})

		It("answers 404 for an unknown registration", func() {
			rec, env := postJSON("/payments", `{"registration_id": 404, "amount": 100, "mode": "cash"}`)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(string(env.Error)).To(ContainSubstring("REGISTRATION_NOT_FOUND"))
		})
	})

	Describe("reads and status changes", func() {
		var feeID string

		BeforeEach(func() {
			rec, env := postJSON("/payments", `{"registration_id": `+strconv.FormatInt(reg.ID, 10)+`, "amount": 4000, "mode": "cheque"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var entry fee.Fee
			Expect(json.Unmarshal(env.Data, &entry)).To(Succeed())
			feeID = strconv.FormatInt(entry.ID, 10)
		})

		It("lists payments with pagination", func() {
			rec, env := do(http.MethodGet, "/payments?due=yes&search=MEERA&limit=5", nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Message).To(Equal("Payments fetched successfully"))
			Expect(env.Pagination).NotTo(BeNil())
			Expect(env.Pagination.Total).To(Equal(int64(1)))
			Expect(env.Pagination.Limit).To(Equal(5))

			var views []fee.PaymentView
			Expect(json.Unmarshal(env.Data, &views)).To(Succeed())
			Expect(views).To(HaveLen(1))
			Expect(views[0].Registration.StudentName).To(Equal("Meera Iyer"))
		})

		DescribeTable("rejects bad list parameters",
			func(query string) {
				rec, env := do(http.MethodGet, "/payments?"+query, nil, "")
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(env.Success).To(BeFalse())
			},
			Entry("due", "due=sometimes"),
			Entry("sort_by", "sort_by=password"),
			Entry("page", "page=first"),
			Entry("start_date", "start_date=yesterday"),
		)

		It("returns an entry with its registration", func() {
			rec, env := do(http.MethodGet, "/payments/"+feeID, nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(string(env.Data)).To(ContainSubstring(`"registration"`))
		})

		It("returns the payment history", func() {
			rec, env := do(http.MethodGet, "/payments/"+strconv.FormatInt(reg.ID, 10)+"/history", nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var history []fee.Fee
			Expect(json.Unmarshal(env.Data, &history)).To(Succeed())
			Expect(history).To(HaveLen(1))
		})

		It("rejects a payment and reverses the balance", func() {
			rec, env := do(http.MethodPatch, "/payments/"+feeID+"/status", bytes.NewBufferString(`{"status":"rejected"}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Message).To(Equal("Payment status updated successfully"))
			Expect(reloadRegistration(db, reg.ID).PaidAmount).To(BeAmount("0"))
		})

		It("rejects an unknown status value", func() {
			rec, _ := do(http.MethodPatch, "/payments/"+feeID+"/status", bytes.NewBufferString(`{"status":"maybe"}`), "application/json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a non-numeric id", func() {
			rec, _ := do(http.MethodGet, "/payments/abc", nil, "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("deletes a payment", func() {
			rec, env := do(http.MethodDelete, "/payments/"+feeID, nil, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(env.Message).To(Equal("Payment deleted successfully"))

			rec, _ = do(http.MethodDelete, "/payments/"+feeID, nil, "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(strings.TrimSpace(rec.Header().Get("Content-Type"))).To(Equal("application/json"))
		})
	})
})
