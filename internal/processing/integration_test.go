package processing

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/cache"
	"github.com/zombor/receipt-extractor/internal/heuristic"
	"github.com/zombor/receipt-extractor/internal/ocr"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

var _ = Describe("Pipeline", func() {
	var (
		modelServer *ghttp.Server
		provider    *mockProvider
		service     *Service
		timeSrc     *mockTimeSource
	)

	BeforeEach(func() {
		modelServer = ghttp.NewServer()
		DeferCleanup(modelServer.Close)

		store, err := cache.NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "cache.sqlite"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		timeSrc = &mockTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		provider = &mockProvider{result: ocr.Result{
			DocumentText: "HOME DEPOT #1234\n01/15/2024\nPAINT 2 @ 22.50 45.00\nSUBTOTAL $45.00\nTAX $3.60\nTOTAL $50.00",
		}}

		ollama, err := scanning.NewOllama(modelServer.URL(), "llama3.1")
		Expect(err).NotTo(HaveOccurred())

		service = NewServiceWithDeps(
			cache.NewGatewayWithDeps(store, cache.DefaultTTL, timeSrc),
			provider,
			scanning.NewStrategy(ollama),
			heuristic.NewStrategy(heuristic.DefaultOptions()),
			Options{FallbackOnParseError: true},
			&mockIDGenerator{id: "req-7"},
			timeSrc,
		)
	})

	reply := func(content string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/api/chat"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": content},
				"done":    true,
			}),
		)
	}

	When("the model reads the receipt", func() {
		BeforeEach(func() {
			modelServer.AppendHandlers(reply("```json\n" + `{"vendor": "Home Depot", "total": "$50.00", "date": "2024-01-15",
				"subtotal": 45.00, "tax": 3.60, "lineItems": [{"description": "Paint", "quantity": 2, "unitPrice": 22.50, "totalPrice": 45.00}],
				"confidence": 0.9}` + "\n```"))
		})

		It("should fix the total and cache the model output", func() {
			result, err := service.Process(context.Background(), "https://cdn.example.com/hd.jpg", ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Record.Total.Value).To(Equal(48.60))
			Expect(result.Record.Total.Method).To(Equal(receipt.MethodCalculated))
			Expect(result.Record.Validation.Fixes).NotTo(BeEmpty())
			Expect(result.Record.Confidences().Vendor).To(BeNumerically("<=", receipt.MaxConfidence))

			again, err := service.Process(context.Background(), "https://cdn.example.com/hd.jpg", ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.FromCache).To(BeTrue())
			Expect(again.Record.Total.Value).To(Equal(50.00))
			Expect(provider.calls).To(HaveLen(1))
			Expect(modelServer.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the model does not answer with JSON", func() {
		BeforeEach(func() {
			modelServer.AppendHandlers(reply("This looks like a Home Depot receipt."))
		})

		It("should fall back to the heuristic extractor", func() {
			result, err := service.Process(context.Background(), "https://cdn.example.com/hd.jpg", ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Record.Vendor.Value).To(Equal("Home Depot"))
			Expect(result.Record.Date.Value).To(Equal("2024-01-15"))
			Expect(result.Record.Total.Value).To(Equal(48.60))
		})
	})
})
