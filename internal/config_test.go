package internal_test

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/digicoders/feeledger/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validConfig() *internal.Config {
	cfg := &internal.Config{
		Database: internal.DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 5, Source: "postgres://localhost/feeledger"},
		Security: internal.SecurityConfig{
			AccessTokenSecret:    "0123456789abcdef0123456789abcdef",
			RefreshTokenSecret:   "fedcba9876543210fedcba9876543210",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 24 * time.Hour,
			BCryptCost:           10,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

var _ = Describe("Config", func() {
	It("fills defaults for the optional knobs", func() {
		cfg := validConfig()
		Expect(cfg.Env).To(Equal("development"))
		Expect(cfg.Server.Port).To(Equal(8080))
		Expect(cfg.Ledger.ReceiptPrefix).To(Equal("DCTREC"))
		Expect(cfg.Ledger.MaxWriteRetries).To(Equal(3))
		Expect(cfg.Ledger.RecomputeStatusOnReversal).To(BeFalse())
		Expect(cfg.Storage.UploadDir).To(Equal("uploads"))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("reports every invalid field", func() {
		cfg := validConfig()
		cfg.Security.AccessTokenSecret = "short"
		cfg.Database.MaxIdleConns = 50

		err := cfg.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("AccessTokenSecret"))
		Expect(err.Error()).To(ContainSubstring("max_idle_conns"))
	})

	It("requires an email api when notifications are enabled", func() {
		cfg := validConfig()
		cfg.Notification.Enabled = true
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("EmailAPIURL")))

		cfg.Notification.EmailAPIURL = "https://mail.example.com/send"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("requires bucket settings for the oss storage driver", func() {
		cfg := validConfig()
		Expect(cfg.Storage.Driver).To(Equal("local"))

		cfg.Storage.Driver = "oss"
		err := cfg.Validate()
		Expect(err).To(MatchError(ContainSubstring("storage config")))
		Expect(err.Error()).To(ContainSubstring("bucket"))

		cfg.Storage.OSS = internal.OSSConfig{
			Endpoint:        "https://oss-ap-southeast-1.aliyuncs.com",
			Bucket:          "fee-receipts",
			AccessKeyID:     "key",
			AccessKeySecret: "secret",
		}
		Expect(cfg.Validate()).To(Succeed())

		cfg.Storage.Driver = "s3"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("Driver failed on oneof")))
	})

	It("reads the environment", func() {
		for k, v := range map[string]string{
			"DATABASE_URL":                        "postgres://db/feeledger",
			"JWT_ACCESS_SECRET":                   "0123456789abcdef0123456789abcdef",
			"JWT_REFRESH_SECRET":                  "fedcba9876543210fedcba9876543210",
			"HTTP_PORT":                           "9090",
			"LEDGER_RECOMPUTE_STATUS_ON_REVERSAL": "true",
			"LEDGER_RETRY_BACKOFF":                "50ms",
		} {
			prev, had := os.LookupEnv(k)
			Expect(os.Setenv(k, v)).To(Succeed())
			DeferCleanup(func() {
				if had {
					_ = os.Setenv(k, prev)
				} else {
					_ = os.Unsetenv(k)
				}
			})
		}

		cfg := internal.LoadConfigFromEnv()
		Expect(cfg.Env).To(Equal("production"))
		Expect(cfg.Server.Port).To(Equal(9090))
		Expect(cfg.Ledger.RecomputeStatusOnReversal).To(BeTrue())
		Expect(cfg.Ledger.RetryBackoff).To(Equal(50 * time.Millisecond))
		Expect(cfg.Validate()).To(Succeed())
	})
})

var _ = Describe("AppError", func() {
	It("matches sentinels through wrapping", func() {
		err := fmt.Errorf("recording payment: %w", internal.ErrDuplicateTransaction)
		Expect(errors.Is(err, internal.ErrDuplicateTransaction)).To(BeTrue())

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("keeps the code when a cause is attached", func() {
		err := internal.ErrConcurrentUpdate.WithCause(internal.ErrVersionConflict)
		Expect(errors.Is(err, internal.ErrConcurrentUpdate)).To(BeTrue())
		Expect(errors.Is(err, internal.ErrVersionConflict)).To(BeTrue())
		Expect(err.StatusCode).To(Equal(http.StatusConflict))
	})

	It("serialises only the public fields", func() {
		body, err := internal.NewInternalError("boom", errors.New("secret dsn")).MarshalJSON()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).NotTo(ContainSubstring("secret dsn"))
		Expect(string(body)).To(ContainSubstring(`"type":"INTERNAL_ERROR"`))
	})

	It("joins field messages of a validation error", func() {
		appErr := internal.NewValidationError("Validation failed", internal.ErrCodeValidationFailed).
			WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{
				{Field: "amount", Message: "amount must be greater than 0"},
				{Field: "mode", Message: "mode is required"},
			}})
		Expect(appErr.GetDetailedMessage()).To(Equal("amount must be greater than 0; mode is required"))
	})
})
