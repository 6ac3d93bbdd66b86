package scanning

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

type mockCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func (m *mockCompleter) Close() error {
	return nil
}

var _ = Describe("Strategy", func() {
	var (
		completer *mockCompleter
		record    *receipt.Record
		err       error
		now       time.Time
	)

	BeforeEach(func() {
		completer = &mockCompleter{}
		now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		record, err = NewStrategy(completer).Extract(context.Background(), "HOME DEPOT\nTOTAL 48.60", now)
	})

	It("should embed the text in the prompt", func() {
		Expect(completer.prompts).To(HaveLen(1))
		Expect(completer.prompts[0]).To(HaveSuffix("HOME DEPOT\nTOTAL 48.60"))
	})

	When("the model returns JSON with unreadable values", func() {
		BeforeEach(func() {
			completer.reply = `{"vendor": "Walmart", "total": "unknown", "date": "2024-01-15", "tax": "N/A", "lineItems": [], "confidence": "high"}`
		})

		It("should treat them as missing", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Vendor.Value).To(Equal("Walmart"))
			Expect(record.Total.Value).To(BeZero())
			Expect(record.Total.Confidence).To(Equal(0.1))
			Expect(record.Tax).To(BeNil())
			Expect(record.Overall).To(Equal(0.8))
		})
	})

	When("the model returns every field", func() {
		BeforeEach(func() {
			completer.reply = `{"vendor": "Home Depot", "total": 48.60, "date": "2024-01-15", "subtotal": 45.00, "tax": 3.60,
				"lineItems": [{"description": "Paint", "quantity": 2, "unitPrice": 22.50}], "confidence": 0.91}`
		})

		It("should assign baseline confidences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Vendor.Confidence).To(Equal(0.9))
			Expect(record.Total.Confidence).To(Equal(0.95))
			Expect(record.Date.Confidence).To(Equal(0.9))
			Expect(record.LineItemsConfidence).To(Equal(0.9))
		})

		It("should use the self reported overall confidence", func() {
			Expect(record.Overall).To(Equal(0.91))
			Expect(record.Quality).To(Equal(receipt.QualityExcellent))
		})

		It("should carry every value", func() {
			Expect(record.Vendor.Value).To(Equal("Home Depot"))
			Expect(record.Total.Value).To(Equal(48.60))
			Expect(record.Subtotal.Value).To(Equal(45.00))
			Expect(record.Tax.Value).To(Equal(3.60))
			Expect(record.Date.Value).To(Equal("2024-01-15"))
		})

		It("should fill in missing item totals", func() {
			Expect(record.LineItems).To(HaveLen(1))
			Expect(record.LineItems[0].TotalPrice).To(Equal(45.00))
		})
	})

	When("the model leaves fields out", func() {
		BeforeEach(func() {
			completer.reply = `{"vendor": "", "total": null, "date": null}`
		})

		It("should give missing fields the floor confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Vendor.Confidence).To(Equal(0.1))
			Expect(record.Total.Confidence).To(Equal(0.1))
			Expect(record.Date.Confidence).To(Equal(0.1))
			Expect(record.LineItemsConfidence).To(Equal(0.1))
		})

		It("should default the date to the processing date", func() {
			Expect(record.Date.Value).To(Equal("2024-03-01"))
			Expect(record.Date.Method).To(Equal(receipt.MethodFallback))
		})

		It("should default the overall confidence", func() {
			Expect(record.Overall).To(Equal(0.8))
		})
	})

	When("the model reply is not JSON", func() {
		BeforeEach(func() {
			completer.reply = "I could not read this receipt."
		})

		It("should return a parse error", func() {
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(record).To(BeNil())
		})
	})

	When("the model cannot be reached", func() {
		BeforeEach(func() {
			completer.err = errors.New("connection refused")
		})

		It("should wrap the error", func() {
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeFalse())
		})
	})
})

var _ = Describe("HTTP completers", func() {
	var server *ghttp.Server

	BeforeEach(func() {
		server = ghttp.NewServer()
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Ollama", func() {
		It("should return the message content", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": `{"vendor": "Target"}`},
					"done":    true,
				}),
			))

			ollama, err := NewOllama(server.URL(), "llama3.1")
			Expect(err).NotTo(HaveOccurred())
			reply, err := ollama.Complete(context.Background(), "prompt")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(`{"vendor": "Target"}`))
		})

		It("should report API errors", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not found"))

			ollama, _ := NewOllama(server.URL(), "")
			_, err := ollama.Complete(context.Background(), "prompt")
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	Describe("OpenAI", func() {
		It("should require an api key", func() {
			_, err := NewOpenAI("", server.URL(), "")
			Expect(err).To(HaveOccurred())
		})

		It("should return the first choice", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{
						{"message": map[string]any{"role": "assistant", "content": `{"vendor": "Costco"}`}},
					},
				}),
			))

			openai, err := NewOpenAI("secret", server.URL(), "gpt-4o-mini")
			Expect(err).NotTo(HaveOccurred())
			reply, err := openai.Complete(context.Background(), "prompt")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(`{"vendor": "Costco"}`))
		})

		It("should leave request deadlines to the caller", func() {
			openai, err := NewOpenAI("secret", server.URL(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(openai.client).To(BeIdenticalTo(http.DefaultClient))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = openai.Complete(ctx, "prompt")
			Expect(err).To(MatchError(context.Canceled))
		})

		It("should fail when there are no choices", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))

			openai, _ := NewOpenAI("secret", server.URL(), "")
			_, err := openai.Complete(context.Background(), "prompt")
			Expect(err).To(MatchError(ContainSubstring("no choices")))
		})
	})

	Describe("Gemini", func() {
		It("should require an api key", func() {
			_, err := NewGemini("", "")
			Expect(err).To(HaveOccurred())
		})
	})
})
