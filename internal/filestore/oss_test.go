package filestore_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/filestore"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type ossRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        string
}

// fakeBucket answers the subset of the OSS REST API the store uses.
type fakeBucket struct {
	mu       sync.Mutex
	requests []ossRequest
	objects  map[string]string
	denied   bool
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, ossRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	})

	if f.denied {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
		return
	}

	switch r.Method {
	case http.MethodPut:
		f.objects[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBucket) Requests() []ossRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ossRequest(nil), f.requests...)
}

func ossConfig(endpoint string) internal.StorageConfig {
	return internal.StorageConfig{
		Driver:         "oss",
		UploadDir:      "unused",
		MaxUploadBytes: 16,
		OSS: internal.OSSConfig{
			Endpoint:        endpoint,
			Bucket:          "fee-receipts",
			AccessKeyID:     "test-key",
			AccessKeySecret: "test-secret",
			Prefix:          "/proofs/",
			PublicBaseURL:   "https://cdn.example.com/",
		},
	}
}

var _ = Describe("OSSStore", func() {
	var (
		bucket *fakeBucket
		server *httptest.Server
		store  *filestore.OSSStore
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		bucket = &fakeBucket{objects: map[string]string{}}
		server = httptest.NewServer(bucket)
		DeferCleanup(server.Close)

		var err error
		store, err = filestore.NewOSSStore(ossConfig(server.URL), nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should put the object under the prefix and return its public url", func() {
		stored, err := store.Upload(ctx, "proof.PNG", "image/png", strings.NewReader("png-bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.StorageID).To(HavePrefix("proofs/"))
		Expect(stored.StorageID).To(HaveSuffix(".png"))
		Expect(stored.URL).To(Equal("https://cdn.example.com/" + stored.StorageID))

		reqs := bucket.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0]).To(Equal(ossRequest{
			Method:      http.MethodPut,
			Path:        "/fee-receipts/" + stored.StorageID,
			ContentType: "image/png",
			Body:        "png-bytes",
		}))
	})

	It("should reject oversized files before talking to the bucket", func() {
		_, err := store.Upload(ctx, "big.jpg", "image/jpeg", bytes.NewReader(make([]byte, 32)))
		Expect(err).To(MatchError(filestore.ErrFileTooLarge))
		Expect(bucket.Requests()).To(BeEmpty())
	})

	It("should reject unsupported extensions", func() {
		_, err := store.Upload(ctx, "notes.txt", "text/plain", strings.NewReader("x"))
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(400))
		Expect(bucket.Requests()).To(BeEmpty())
	})

	It("should delete objects and treat missing keys as gone", func() {
		stored, err := store.Upload(ctx, "proof.pdf", "application/pdf", strings.NewReader("pdf"))
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Delete(ctx, stored.StorageID)).To(Succeed())
		Expect(bucket.objects).To(BeEmpty())

		Expect(store.Delete(ctx, stored.StorageID)).To(Succeed())
		Expect(bucket.Requests()).To(HaveLen(3))
	})

	It("should surface bucket errors", func() {
		bucket.denied = true
		_, err := store.Upload(ctx, "proof.jpg", "image/jpeg", strings.NewReader("jpg"))
		Expect(err).To(MatchError(ContainSubstring("AccessDenied")))

		Expect(store.Delete(ctx, "proofs/x.jpg")).To(MatchError(ContainSubstring("AccessDenied")))
	})

	It("should fall back to the bucket host when no public base is set", func() {
		cfg := ossConfig("https://oss-ap-southeast-1.aliyuncs.com")
		cfg.OSS.PublicBaseURL = ""
		s, err := filestore.NewOSSStore(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.PublicURL("proofs/a.png")).To(Equal("https://fee-receipts.oss-ap-southeast-1.aliyuncs.com/proofs/a.png"))
	})
})

var _ = Describe("New", func() {
	It("should build a local store by default", func() {
		s, err := filestore.New(internal.StorageConfig{UploadDir: GinkgoT().TempDir()}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeAssignableToTypeOf(&filestore.LocalStore{}))
	})

	It("should build an oss store for the oss driver", func() {
		s, err := filestore.New(ossConfig("https://oss-ap-southeast-1.aliyuncs.com"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeAssignableToTypeOf(&filestore.OSSStore{}))
	})

	It("should refuse an oss driver without credentials", func() {
		cfg := ossConfig("https://oss-ap-southeast-1.aliyuncs.com")
		cfg.OSS.AccessKeySecret = ""
		_, err := filestore.New(cfg, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should refuse unknown drivers", func() {
		_, err := filestore.New(internal.StorageConfig{Driver: "s3"}, nil)
		Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
	})
})
