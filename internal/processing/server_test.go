package processing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/cache"
	"github.com/zombor/receipt-extractor/internal/ocr"
)

var _ = Describe("Server", func() {
	var (
		provider    *mockProvider
		primary     *mockExtractor
		gateway     *cache.Gateway
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func(requests int) {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		timeSrc := &mockTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		service := NewServiceWithDeps(gateway, provider, primary, nil, Options{}, &mockIDGenerator{id: "req-42"}, timeSrc)
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for i := 0; i < requests; i++ {
			ghttpServer.AppendHandlers(server.ServeHTTP)
		}
	}

	post := func(path, contentType, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, contentType, bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		var out map[string]any
		Expect(json.Unmarshal(body, &out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		store, err := cache.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "cache.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		gateway = cache.NewGateway(store, cache.DefaultTTL)
		provider = &mockProvider{result: ocr.Result{DocumentText: "HOME DEPOT\nTOTAL 48.60"}}
		primary = &mockExtractor{record: modelRecord("2024-01-15")}
		setupServer(1)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleExtract", func() {
		When("the request is valid", func() {
			It("should return the extracted receipt", func() {
				resp := post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				body := decode(resp)
				Expect(body["success"]).To(BeTrue())
				Expect(body["request_id"]).To(Equal("req-42"))
				Expect(body["vendor"]).To(Equal("Home Depot"))
				Expect(body["total"]).To(Equal(48.6))
				Expect(body["date"]).To(Equal("2024-01-15"))
				Expect(body["subtotal"]).To(Equal(45.0))
				Expect(body["tax"]).To(Equal(3.6))
				Expect(body["lineItems"]).To(BeEmpty())
				Expect(body["document_type"]).To(Equal("receipt"))
				Expect(body["from_cache"]).To(BeFalse())
				Expect(body["quality"]).To(Equal("excellent"))
				Expect(body).To(HaveKey("processing_time"))
				Expect(body["confidence"]).To(HaveKeyWithValue("overall", 0.85))
				Expect(body["validation"]).To(HaveKeyWithValue("passed", true))
				Expect(body["validation"]).To(HaveKeyWithValue("needs_review", false))
			})

			It("should set CORS headers", func() {
				resp := post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`)
				resp.Body.Close()
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			})

			It("should also be served at the root", func() {
				resp := post("/", "application/json; charset=utf-8", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decode(resp)["vendor"]).To(Equal("Home Depot"))
			})
		})

		When("the same image is requested twice", func() {
			BeforeEach(func() {
				setupServer(2)
			})

			It("should serve the second response from the cache", func() {
				first := decode(post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`))
				second := decode(post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`))
				Expect(first["from_cache"]).To(BeFalse())
				Expect(second["from_cache"]).To(BeTrue())
				Expect(second["vendor"]).To(Equal("Home Depot"))
				Expect(provider.calls).To(HaveLen(1))
			})
		})

		When("testMode is true", func() {
			It("should extract the sample receipt", func() {
				resp := post("/api/receipts/extract", "application/json", `{"testMode": true}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := decode(resp)
				Expect(body["mode"]).To(Equal("test"))
				Expect(body["vendor"]).To(Equal("Walmart"))
				Expect(provider.calls).To(BeEmpty())
			})
		})

		When("testMode is debug", func() {
			It("should return the raw OCR text", func() {
				resp := post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg", "testMode": "debug"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body := decode(resp)
				Expect(body["mode"]).To(Equal("debug"))
				Expect(body["raw_text"]).To(Equal("HOME DEPOT\nTOTAL 48.60"))
				Expect(body["text_length"]).To(BeNumerically("==", len("HOME DEPOT\nTOTAL 48.60")))
				Expect(body).NotTo(HaveKey("vendor"))
			})
		})

		When("testMode is not recognised", func() {
			It("should return a bad request", func() {
				resp := post("/api/receipts/extract", "application/json", `{"imageUrl": "x.jpg", "testMode": "fast"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["error"]).To(Equal("INVALID_REQUEST"))
			})
		})

		When("the method is not POST", func() {
			It("should return a JSON method not allowed error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/extract")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
				body := decode(resp)
				Expect(body["success"]).To(BeFalse())
				Expect(body["error"]).To(Equal("METHOD_NOT_ALLOWED"))
			})
		})

		When("the content type is not JSON", func() {
			It("should return a bad request", func() {
				resp := post("/api/receipts/extract", "text/plain", `{"imageUrl": "x.jpg"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["error"]).To(Equal("INVALID_REQUEST"))
			})
		})

		When("the body is not JSON", func() {
			It("should return a bad request", func() {
				resp := post("/api/receipts/extract", "application/json", `imageUrl=x.jpg`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["error"]).To(Equal("INVALID_REQUEST"))
			})
		})

		When("the image URL is missing", func() {
			It("should return a bad request", func() {
				resp := post("/api/receipts/extract", "application/json", `{}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decode(resp)
				Expect(body["error"]).To(Equal("INVALID_REQUEST"))
				Expect(body["message"]).To(Equal("imageUrl is required"))
			})
		})

		When("OCR fails", func() {
			BeforeEach(func() {
				provider.err = io.ErrUnexpectedEOF
			})

			It("should return an OCR service error", func() {
				resp := post("/api/receipts/extract", "application/json", `{"imageUrl": "https://cdn.example.com/r1.jpg"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decode(resp)
				Expect(body["success"]).To(BeFalse())
				Expect(body["error"]).To(Equal("OCR_SERVICE_ERROR"))
			})
		})
	})

	Describe("OPTIONS preflight", func() {
		It("should return no content with CORS headers", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/receipts/extract", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Describe("handleHealth", func() {
		It("should report ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(HaveKeyWithValue("status", "ok"))
		})
	})
})
