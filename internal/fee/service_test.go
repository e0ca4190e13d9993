package fee_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/internal/fee"
	feePostgres "github.com/digicoders/feeledger/internal/fee/postgres"
	"github.com/digicoders/feeledger/internal/filestore"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var _ = Describe("Fee Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		sdb       *sqlx.DB
		publisher *recordingPublisher
		uploadDir string
		service   *fee.Service
		reg       *registrationDatamodel.Registration
		cashierID int64
	)

	newService := func(recompute bool) *fee.Service {
		files, err := filestore.NewLocalStore(internal.StorageConfig{
			UploadDir:      uploadDir,
			PublicBaseURL:  "/uploads",
			MaxUploadBytes: 1 << 20,
		}, testLogger)
		Expect(err).NotTo(HaveOccurred())

		return fee.NewService(
			feePostgres.NewFeeRepository(db),
			feePostgres.NewQueryRepository(sdb),
			files,
			serial.NewGenerator("DCTREC"),
			publisher,
			fee.Options{
				RecomputeStatusOnReversal: recompute,
				Retry:                     txretry.Policy{MaxRetries: 3, Backoff: time.Millisecond},
			},
			testLogger,
		)
	}

	record := func(regID int64, amount int64, tnxID *string) *fee.Fee {
		entry, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
			RegistrationID: regID,
			Amount:         decimal.NewFromInt(amount),
			Mode:           "online",
			TnxID:          tnxID,
		}, &cashierID)
		Expect(err).NotTo(HaveOccurred())
		return entry
	}

	BeforeEach(func() {
		ctx = context.Background()
		db, sdb = openLedgerDB()
		publisher = &recordingPublisher{}
		uploadDir = GinkgoT().TempDir()
		cashierID = 7
		service = newService(false)
		reg = seedRegistration(db, "DCT-2025-001", "Asha Verma", "asha@example.com", "CSE", 10000)
	})

	Describe("RecordPayment", func() {
		It("credits the registration and snapshots the balance on the entry", func() {
			tnx := "UPI-3000"
			entry := record(reg.ID, 3000, &tnx)

			Expect(entry.ID).To(BeNumerically(">", 0))
			Expect(entry.ReceiptNo).To(MatchRegexp(`^DCTREC-\d{4}-\d{3}$`))
			Expect(entry.Amount).To(BeAmount("3000"))
			Expect(entry.PaidAmount).To(BeAmount("3000"))
			Expect(entry.DueAmount).To(BeAmount("7000"))
			Expect(entry.FinalFee).To(BeAmount("10000"))
			Expect(entry.Status).To(Equal(feeDatamodel.StatusNew))
			Expect(entry.TnxStatus).To(Equal(feeDatamodel.TnxStatusPending))
			Expect(entry.PaymentType).To(Equal(feeDatamodel.PaymentTypeInstallment))
			Expect(entry.PaidBy).To(HaveValue(Equal(cashierID)))

			updated := reloadRegistration(db, reg.ID)
			Expect(updated.PaidAmount).To(BeAmount("3000"))
			Expect(updated.DueAmount).To(BeAmount("7000"))
			Expect(updated.TrainingFeeStatus).To(Equal("partial"))
			Expect(updated.PaidAmount.Add(updated.DueAmount)).To(BeAmount("10000"))
			Expect(updated.Version).To(Equal(reg.Version + 1))

			Expect(publisher.Types()).To(ConsistOf(events.EventTypePaymentRecorded))
		})

		It("marks the entry full paid when the balance is cleared", func() {
			record(reg.ID, 3000, nil)
			entry := record(reg.ID, 7000, nil)

			Expect(entry.DueAmount).To(BeAmount("0"))
			Expect(entry.TnxStatus).To(Equal(feeDatamodel.TnxStatusFullPaid))

			updated := reloadRegistration(db, reg.ID)
			Expect(updated.PaidAmount).To(BeAmount("10000"))
			Expect(updated.DueAmount).To(BeAmount("0"))
			Expect(updated.TrainingFeeStatus).To(Equal("full paid"))
		})

		It("keeps paid plus due equal to the final fee across payments", func() {
			for _, amount := range []int64{1500, 2500, 4000} {
				record(reg.ID, amount, nil)
				updated := reloadRegistration(db, reg.ID)
				Expect(updated.PaidAmount.Add(updated.DueAmount)).To(BeAmount("10000"))
			}
		})

		It("rejects a reused transaction id without touching the balance", func() {
			tnx := "UPI-DUP"
			record(reg.ID, 1000, &tnx)

			dup := "  UPI-DUP "
			_, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: reg.ID,
				Amount:         decimal.NewFromInt(500),
				Mode:           "cash",
				TnxID:          &dup,
			}, nil)
			Expect(err).To(MatchError(internal.ErrDuplicateTransaction))

			updated := reloadRegistration(db, reg.ID)
			Expect(updated.PaidAmount).To(BeAmount("1000"))
		})

		It("returns not found for an unknown registration", func() {
			_, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: 9999,
				Amount:         decimal.NewFromInt(100),
				Mode:           "cash",
			}, nil)
			Expect(err).To(MatchError(internal.ErrRegistrationNotFound))
		})

		DescribeTable("rejects invalid input",
			func(dto fee.RecordPaymentDTO, field string) {
				dto.RegistrationID = reg.ID
				_, err := service.RecordPayment(ctx, dto, nil)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
				details, ok := appErr.Details.(internal.ValidationErrors)
				Expect(ok).To(BeTrue())
				Expect(details.Errors).To(ContainElement(HaveField("Field", field)))
			},
			Entry("zero amount", fee.RecordPaymentDTO{Amount: decimal.Zero, Mode: "cash"}, "amount"),
			Entry("negative amount", fee.RecordPaymentDTO{Amount: decimal.NewFromInt(-5), Mode: "cash"}, "amount"),
			Entry("unknown mode", fee.RecordPaymentDTO{Amount: decimal.NewFromInt(5), Mode: "barter"}, "mode"),
			Entry("unknown payment type", fee.RecordPaymentDTO{Amount: decimal.NewFromInt(5), Mode: "cash", PaymentType: "gift"}, "payment_type"),
		)

		It("stores the proof of payment and links it to the entry", func() {
			entry, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: reg.ID,
				Amount:         decimal.NewFromInt(2000),
				Mode:           "online",
				Attachment: &fee.Attachment{
					Filename:    "receipt.png",
					ContentType: "image/png",
					Content:     bytes.NewReader([]byte("png-bytes")),
				},
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.ImageURL).NotTo(BeNil())
			Expect(*entry.ImageURL).To(HavePrefix("/uploads/"))
			Expect(entry.ImageStorageID).NotTo(BeNil())
			Expect(filepath.Join(uploadDir, *entry.ImageStorageID)).To(BeAnExistingFile())
		})

		It("does not keep a proof for a payment with a reused transaction id", func() {
			tnx := "UPI-TAKEN"
			record(reg.ID, 1000, &tnx)

			_, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: reg.ID,
				Amount:         decimal.NewFromInt(1000),
				Mode:           "online",
				TnxID:          &tnx,
				Attachment: &fee.Attachment{
					Filename: "receipt.png",
					Content:  bytes.NewReader([]byte("png-bytes")),
				},
			}, nil)
			Expect(err).To(HaveOccurred())

			files, err := os.ReadDir(uploadDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(BeEmpty())
		})
	})

	Describe("ChangeStatus", func() {
		var entry *fee.Fee
		verifierID := int64(3)

		BeforeEach(func() {
			entry = record(reg.ID, 3000, nil)
		})

		It("accepting marks the transaction paid without moving the balance", func() {
			updated, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "accepted"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(feeDatamodel.StatusAccepted))
			Expect(updated.TnxStatus).To(Equal(feeDatamodel.TnxStatusPaid))
			Expect(updated.VerifiedBy).To(HaveValue(Equal(verifierID)))

			r := reloadRegistration(db, reg.ID)
			Expect(r.PaidAmount).To(BeAmount("3000"))
			Expect(r.DueAmount).To(BeAmount("7000"))
		})

		It("rejecting reverses the amount exactly once", func() {
			updated, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "rejected"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Reversed).To(BeTrue())
			Expect(updated.TnxStatus).To(Equal(feeDatamodel.TnxStatusFailed))

			r := reloadRegistration(db, reg.ID)
			Expect(r.PaidAmount).To(BeAmount("0"))
			Expect(r.DueAmount).To(BeAmount("10000"))

			_, err = service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "rejected"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())

			r = reloadRegistration(db, reg.ID)
			Expect(r.PaidAmount).To(BeAmount("0"))
			Expect(r.DueAmount).To(BeAmount("10000"))
		})

		It("does not credit the amount back when a rejected entry is accepted", func() {
			_, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "rejected"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "accepted"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Reversed).To(BeTrue())

			r := reloadRegistration(db, reg.ID)
			Expect(r.PaidAmount).To(BeAmount("0"))
		})

		It("leaves training_fee_status alone on reversal by default", func() {
			_, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "rejected"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())

			Expect(reloadRegistration(db, reg.ID).TrainingFeeStatus).To(Equal("partial"))
		})

		It("recomputes training_fee_status on reversal when configured", func() {
			service = newService(true)
			_, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "rejected"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())

			Expect(reloadRegistration(db, reg.ID).TrainingFeeStatus).To(Equal("pending"))
		})

		It("publishes the status change", func() {
			_, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "accepted"}, &verifierID)
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.Types()).To(ContainElement(events.EventTypePaymentStatusChanged))
		})

		It("rejects an unknown status", func() {
			_, err := service.ChangeStatus(ctx, entry.ID, fee.ChangeStatusDTO{Status: "approved"}, &verifierID)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		})

		It("returns not found for an unknown entry", func() {
			_, err := service.ChangeStatus(ctx, 9999, fee.ChangeStatusDTO{Status: "accepted"}, &verifierID)
			Expect(err).To(MatchError(internal.ErrFeeNotFound))
		})
	})

	Describe("reads", func() {
		var other *registrationDatamodel.Registration

		BeforeEach(func() {
			other = seedRegistration(db, "DCT-2025-002", "Rahul Singh", "RAHUL@Example.com", "ECE", 5000)

			tnx := "NEFT-77"
			record(reg.ID, 3000, &tnx)
			record(other.ID, 5000, nil)
		})

		It("lists entries of registrations that still owe money", func() {
			views, page, err := service.ListPayments(ctx, fee.ListFilter{Due: "yes"})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
			Expect(views).To(HaveLen(1))
			Expect(views[0].Registration.StudentName).To(Equal("Asha Verma"))
			Expect(views[0].Registration.DueAmount).To(BeAmount("7000"))
		})

		It("lists settled registrations with due=no", func() {
			views, _, err := service.ListPayments(ctx, fee.ListFilter{Due: "no"})
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0].Registration.UserID).To(Equal("DCT-2025-002"))
		})

		It("searches case-insensitively across student and transaction fields", func() {
			views, _, err := service.ListPayments(ctx, fee.ListFilter{Search: "rahul@EXAMPLE"})
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0].Registration.Email).To(Equal("RAHUL@Example.com"))

			views, _, err = service.ListPayments(ctx, fee.ListFilter{Search: "neft"})
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0].TnxID).To(HaveValue(Equal("NEFT-77")))
		})

		It("treats LIKE wildcards in the search term literally", func() {
			views, _, err := service.ListPayments(ctx, fee.ListFilter{Search: "%"})
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(BeEmpty())
		})

		It("paginates and sorts", func() {
			views, page, err := service.ListPayments(ctx, fee.ListFilter{Limit: 1, Page: 2, SortBy: "amount", SortOrder: "asc"})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(Equal(fee.Pagination{Total: 2, Page: 2, Limit: 1, TotalPages: 2}))
			Expect(views).To(HaveLen(1))
			Expect(views[0].Amount).To(BeAmount("5000"))
		})

		It("filters by branch", func() {
			views, _, err := service.ListPayments(ctx, fee.ListFilter{Branch: "ECE"})
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0].Registration.Branch).To(Equal("ECE"))
		})

		It("rejects an unknown due filter", func() {
			_, _, err := service.ListPayments(ctx, fee.ListFilter{Due: "maybe"})
			Expect(err).To(HaveOccurred())
		})

		It("returns the history of a registration newest first", func() {
			earlier := time.Now().Add(-48 * time.Hour)
			_, err := service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: reg.ID,
				Amount:         decimal.NewFromInt(500),
				Mode:           "cash",
				PaymentDate:    &earlier,
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			history, err := service.GetPaymentHistory(ctx, reg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0].Amount).To(BeAmount("3000"))
			Expect(history[1].Amount).To(BeAmount("500"))
		})

		It("returns not found for the history of an unknown registration", func() {
			_, err := service.GetPaymentHistory(ctx, 9999)
			Expect(err).To(MatchError(internal.ErrRegistrationNotFound))
		})

		It("fetches an entry with its registration", func() {
			history, err := service.GetPaymentHistory(ctx, other.ID)
			Expect(err).NotTo(HaveOccurred())

			view, err := service.GetFeeByID(ctx, history[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Registration.StudentName).To(Equal("Rahul Singh"))
			Expect(view.Registration.TrainingFeeStatus).To(Equal("full paid"))
		})

		It("falls back to the latest entry of a registration id", func() {
			history, err := service.GetPaymentHistory(ctx, reg.ID)
			Expect(err).NotTo(HaveOccurred())
			first := history[0]

			latest := record(reg.ID, 1000, nil)
			Expect(service.DeletePayment(ctx, first.ID)).To(Succeed())
			Expect(first.ID).To(Equal(reg.ID))

			view, err := service.GetFeeByID(ctx, reg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.ID).To(Equal(latest.ID))
			Expect(view.Registration.ID).To(Equal(reg.ID))
		})

		It("returns not found when neither an entry nor a registration matches", func() {
			view, err := service.GetFeeByID(ctx, 9999)
			Expect(err).To(MatchError(internal.ErrFeeNotFound))
			Expect(view).To(BeNil())
		})
	})

	Describe("ListPayments filters", func() {
		var (
			other    *registrationDatamodel.Registration
			now      time.Time
			older    *fee.Fee
			recent   *fee.Fee
			listOnly = func(filter fee.ListFilter) []*fee.PaymentView {
				views, page, err := service.ListPayments(ctx, filter)
				Expect(err).NotTo(HaveOccurred())
				Expect(page.Total).To(Equal(int64(len(views))))
				return views
			}
			amount = func(v int64) *decimal.Decimal {
				d := decimal.NewFromInt(v)
				return &d
			}
			at = func(t time.Time) *time.Time { return &t }
		)

		BeforeEach(func() {
			other = seedRegistration(db, "DCT-2025-002", "Rahul Singh", "rahul@example.com", "ECE", 8000)
			now = time.Now()

			var err error
			older, err = service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: reg.ID,
				Amount:         decimal.NewFromInt(2000),
				Mode:           "cash",
				PaymentType:    "registration",
				TnxStatus:      "paid",
				PaymentDate:    at(now.AddDate(0, 0, -10)),
			}, &cashierID)
			Expect(err).NotTo(HaveOccurred())

			recent, err = service.RecordPayment(ctx, fee.RecordPaymentDTO{
				RegistrationID: other.ID,
				Amount:         decimal.NewFromInt(6000),
				Mode:           "online",
				PaymentDate:    at(now.Add(-time.Minute)),
			}, &cashierID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps entries paid on or after the start date", func() {
			views := listOnly(fee.ListFilter{StartDate: at(now.AddDate(0, 0, -1))})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(recent.ID))
		})

		It("keeps entries paid on or before the end date", func() {
			views := listOnly(fee.ListFilter{EndDate: at(now.AddDate(0, 0, -5))})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(older.ID))
		})

		It("returns nothing for a window between the two payments", func() {
			views := listOnly(fee.ListFilter{StartDate: at(now.AddDate(0, 0, -8)), EndDate: at(now.AddDate(0, 0, -2))})
			Expect(views).To(BeEmpty())
		})

		It("filters on the paid amount snapshot of each entry", func() {
			views := listOnly(fee.ListFilter{MinPaid: amount(5500)})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(recent.ID))
			Expect(views[0].PaidAmount).To(BeAmount("6000"))

			views = listOnly(fee.ListFilter{MaxPaid: amount(5500)})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(older.ID))
			Expect(views[0].PaidAmount).To(BeAmount("2000"))

			Expect(listOnly(fee.ListFilter{MinPaid: amount(1000), MaxPaid: amount(7000)})).To(HaveLen(2))
		})

		It("filters by transaction status", func() {
			views := listOnly(fee.ListFilter{TnxStatus: "pending"})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(recent.ID))

			views = listOnly(fee.ListFilter{TnxStatus: "paid"})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(older.ID))
		})

		It("filters by payment type", func() {
			views := listOnly(fee.ListFilter{PaymentType: "registration"})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(older.ID))

			Expect(listOnly(fee.ListFilter{PaymentType: "full"})).To(BeEmpty())
		})

		It("filters by mode and combines with the other filters", func() {
			views := listOnly(fee.ListFilter{Mode: "online"})
			Expect(views).To(HaveLen(1))
			Expect(views[0].ID).To(Equal(recent.ID))

			Expect(listOnly(fee.ListFilter{Mode: "online", TnxStatus: "paid"})).To(BeEmpty())
			Expect(listOnly(fee.ListFilter{Mode: "cash", TnxStatus: "paid", EndDate: at(now.AddDate(0, 0, -5))})).To(HaveLen(1))
		})
	})

	Describe("DeletePayment", func() {
		It("removes the entry and leaves the balance as it was", func() {
			entry := record(reg.ID, 3000, nil)

			Expect(service.DeletePayment(ctx, entry.ID)).To(Succeed())

			_, err := service.GetFeeByID(ctx, entry.ID)
			Expect(err).To(HaveOccurred())
			Expect(reloadRegistration(db, reg.ID).PaidAmount).To(BeAmount("3000"))
		})

		It("returns not found for an unknown entry", func() {
			Expect(service.DeletePayment(ctx, 9999)).To(MatchError(internal.ErrFeeNotFound))
		})
	})
})
