package heuristic

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

func TestHeuristic(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Heuristic Suite")
}

var processedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var _ = Describe("DetectVendor", func() {
	var (
		text   string
		opts   Options
		vendor receipt.Field[string]
	)

	BeforeEach(func() {
		opts = DefaultOptions()
	})

	JustBeforeEach(func() {
		vendor = DetectVendor(text, opts)
	})

	DescribeTable("ignores case and punctuation",
		func(line, expected string) {
			Expect(DetectVendor(line+"\n01/15/2024", DefaultOptions()).Value).To(Equal(expected))
		},
		Entry("upper case", "HOME DEPOT", "Home Depot"),
		Entry("store number", "Home Depot #1234", "Home Depot"),
		Entry("hyphenated", "home-depot", "Home Depot"),
		Entry("walmart supercenter", "WAL-MART SUPERCENTER #4521", "Walmart"),
	)

	When("a known vendor is on the second line", func() {
		BeforeEach(func() {
			text = "Welcome!\nLowe's Home Improvement\n123 Main St"
		})

		It("should use the alias table", func() {
			Expect(vendor.Value).To(Equal("Lowe's"))
			Expect(vendor.Method).To(Equal(receipt.MethodPattern))
			Expect(vendor.Confidence).To(Equal(0.9))
		})
	})

	When("the vendor is unknown", func() {
		BeforeEach(func() {
			text = "\n  Joe's Corner Shop  \n42 Elm St"
		})

		It("should fall back to the first non-empty line", func() {
			Expect(vendor.Value).To(Equal("Joe's Corner Shop"))
			Expect(vendor.Method).To(Equal(receipt.MethodFallback))
			Expect(vendor.Confidence).To(BeNumerically("<", 0.5))
		})
	})

	When("an alias only appears inside another word", func() {
		BeforeEach(func() {
			text = "SHADOWLANDS CAFE"
		})

		It("should not match on partial tokens", func() {
			Expect(vendor.Method).To(Equal(receipt.MethodFallback))
		})
	})

	When("the name is misspelled", func() {
		BeforeEach(func() {
			text = "HOME DEPT\n01/15/2024"
		})

		It("should fall back without fuzzy matching", func() {
			Expect(vendor.Value).To(Equal("HOME DEPT"))
		})

		When("fuzzy matching is enabled", func() {
			BeforeEach(func() {
				opts.FuzzyVendor = true
			})

			It("should resolve the closest alias", func() {
				Expect(vendor.Value).To(Equal("Home Depot"))
				Expect(vendor.Method).To(Equal(receipt.MethodFuzzy))
				Expect(vendor.Confidence).To(BeNumerically("~", 0.765, 1e-9))
			})
		})
	})

	When("there is no text", func() {
		BeforeEach(func() {
			text = ""
		})

		It("should return an empty fallback", func() {
			Expect(vendor.Value).To(BeEmpty())
			Expect(vendor.Confidence).To(BeZero())
		})
	})
})

var _ = Describe("Similarity", func() {
	It("should score edits against the longer string", func() {
		Expect(Similarity("kitten", "sitting")).To(BeNumerically("~", 1-3.0/7, 1e-9))
	})

	It("should treat identical strings as a perfect match", func() {
		Expect(Similarity("COSTCO", "COSTCO")).To(Equal(1.0))
		Expect(Similarity("", "")).To(Equal(1.0))
	})

	It("should give up when lengths differ too much", func() {
		Expect(Similarity("abc", "abcdefgh")).To(BeZero())
	})
})

var _ = Describe("ParseDate", func() {
	DescribeTable("recognised formats",
		func(text, expected string) {
			date := ParseDate(text, processedAt)
			Expect(date.Value).To(Equal(expected))
			Expect(date.Method).To(Equal(receipt.MethodPattern))
		},
		Entry("month name", "Jan 15, 2024", "2024-01-15"),
		Entry("full month name", "STORE\nJanuary 15 2024", "2024-01-15"),
		Entry("iso", "2024-01-15", "2024-01-15"),
		Entry("slashes", "01/15/2024 10:42", "2024-01-15"),
		Entry("dots", "01.15.2024", "2024-01-15"),
		Entry("ambiguous is month first", "03/04/2024", "2024-03-04"),
	)

	It("should reject impossible calendar dates", func() {
		date := ParseDate("02/30/2024", processedAt)
		Expect(date.Value).To(Equal("2024-03-01"))
		Expect(date.Method).To(Equal(receipt.MethodFallback))
	})

	It("should only look at the first five lines", func() {
		date := ParseDate("a\nb\nc\nd\ne\n01/15/2024", processedAt)
		Expect(date.Method).To(Equal(receipt.MethodFallback))
		Expect(date.Confidence).To(Equal(0.1))
	})
})

var _ = Describe("ParseAmounts", func() {
	var (
		text   string
		opts   Options
		result AmountResult
	)

	BeforeEach(func() {
		opts = DefaultOptions()
	})

	JustBeforeEach(func() {
		result = ParseAmounts(text, opts)
	})

	When("the total is on the line after its label", func() {
		BeforeEach(func() {
			text = "SUBTOTAL $45.00\nTAX $3.60\nTOTAL\n$48.60"
		})

		It("should read the total", func() {
			Expect(result.Found).To(BeTrue())
			Expect(result.Total.Value).To(Equal(48.60))
			Expect(result.Total.Confidence).To(Equal(0.9))
			Expect(result.Labelled).To(BeTrue())
		})

		It("should read the subtotal and tax", func() {
			Expect(result.Subtotal).NotTo(BeNil())
			Expect(result.Subtotal.Value).To(Equal(45.00))
			Expect(result.Tax).NotTo(BeNil())
			Expect(result.Tax.Value).To(Equal(3.60))
		})
	})

	When("the total is on the same line", func() {
		BeforeEach(func() {
			text = "SUBTOTAL $45.00\nTAX $3.60\nTOTAL $50.00"
		})

		It("should use the labelled total", func() {
			Expect(result.Total.Value).To(Equal(50.00))
			Expect(result.Total.Method).To(Equal(receipt.MethodPattern))
		})
	})

	When("two totals score the same", func() {
		BeforeEach(func() {
			text = "TOTAL 10.00\n\n\n\n\n\nTOTAL 12.00"
		})

		It("should prefer the larger amount", func() {
			Expect(result.Total.Value).To(Equal(12.00))
			Expect(result.Total.Confidence).To(BeNumerically("~", 0.8, 0.001))
			Expect(result.Labelled).To(BeTrue())
		})
	})

	When("a split subtotal label sits above its amount", func() {
		BeforeEach(func() {
			text = "SUB TOTAL\n45.00\nTAX\n3.60\nTOTAL\n48.60"
		})

		It("should not take the subtotal as the total", func() {
			Expect(result.Total.Value).To(Equal(48.60))
			Expect(result.Total.Confidence).To(Equal(0.9))
		})
	})

	When("a split subtotal label shares a line with its amount", func() {
		BeforeEach(func() {
			text = "SUB TOTAL 45.00\nTAX 3.60\nTOTAL 48.60"
		})

		It("should skip the subtotal line", func() {
			Expect(result.Total.Value).To(Equal(48.60))
			Expect(result.Subtotal).NotTo(BeNil())
			Expect(result.Subtotal.Value).To(Equal(45.00))
		})
	})

	When("a grand total and a plain total compete", func() {
		BeforeEach(func() {
			text = "ITEMS 3\nTOTAL 10.00\n\n\n\n\n\n\nGRAND TOTAL 12.50"
		})

		It("should prefer the grand total", func() {
			Expect(result.Total.Value).To(Equal(12.50))
			Expect(result.Total.Confidence).To(BeNumerically("~", 0.95, 1e-9))
		})
	})

	When("the tax line carries a rate", func() {
		BeforeEach(func() {
			text = "SALES TAX 8.25% 4.13\nTOTAL 54.13"
		})

		It("should read the tax amount rather than the rate", func() {
			Expect(result.Tax).NotTo(BeNil())
			Expect(result.Tax.Value).To(Equal(4.13))
		})
	})

	When("the total stands alone a few lines above its amount", func() {
		BeforeEach(func() {
			text = "WIDGET\nTOTAL:\n\n\n$19.99"
		})

		It("should pair them", func() {
			Expect(result.Total.Value).To(Equal(19.99))
			Expect(result.Total.Confidence).To(Equal(0.75))
		})
	})

	When("no label is present", func() {
		BeforeEach(func() {
			text = "coffee 3.50\nmuffin 2.25\n\n\n\n\n\nbalance owed $5.75"
		})

		It("should score every amount and cap the confidence", func() {
			Expect(result.Total.Value).To(Equal(5.75))
			Expect(result.Total.Method).To(Equal(receipt.MethodInferred))
			Expect(result.Total.Confidence).To(BeNumerically("<=", 0.7))
			Expect(result.Labelled).To(BeFalse())
		})
	})

	When("amounts were printed without a decimal point", func() {
		BeforeEach(func() {
			text = "STORE #4521\nTOTAL 1299"
		})

		It("should read them as cents", func() {
			Expect(result.Total.Value).To(Equal(12.99))
		})

		When("decimal repair is disabled", func() {
			BeforeEach(func() {
				opts.DecimalRepair = false
			})

			It("should find nothing", func() {
				Expect(result.Found).To(BeFalse())
				Expect(result.Total.Method).To(Equal(receipt.MethodFallback))
			})
		})
	})

	DescribeTable("recovers the exact value of any currency token",
		func(token string, expected float64) {
			Expect(ParseAmounts(token, DefaultOptions()).Total.Value).To(Equal(expected))
			Expect(ParseAmounts("TOTAL "+token, DefaultOptions()).Total.Value).To(Equal(expected))
		},
		Entry("cents", "$0.99", 0.99),
		Entry("no symbol", "12.34", 12.34),
		Entry("thousands separator", "$1,234.56", 1234.56),
		Entry("round", "$100.00", 100.00),
		Entry("large", "9999.99", 9999.99),
	)
})

var _ = Describe("pickCandidate", func() {
	It("should break confidence ties with the larger amount in any order", func() {
		low := amountCandidate{value: 10.00, confidence: 0.8}
		high := amountCandidate{value: 12.00, confidence: 0.8}
		Expect(pickCandidate([]amountCandidate{low, high}).value).To(Equal(12.00))
		Expect(pickCandidate([]amountCandidate{high, low}).value).To(Equal(12.00))
	})

	It("should rank confidence above size", func() {
		small := amountCandidate{value: 5.00, confidence: 0.9}
		large := amountCandidate{value: 50.00, confidence: 0.7}
		Expect(pickCandidate([]amountCandidate{large, small}).value).To(Equal(5.00))
	})
})

var _ = Describe("repairDecimals", func() {
	It("should leave codes and punctuated numbers alone", func() {
		Expect(repairDecimals("STORE #4521 CALL 555-1234")).To(Equal("STORE #4521 CALL 555-1234"))
		Expect(repairDecimals("01/15/2024")).To(Equal("01/15/2024"))
	})

	It("should rewrite bare integers", func() {
		Expect(repairDecimals("TOTAL $1299\n")).To(Equal("TOTAL $12.99\n"))
		Expect(repairDecimals("QTY 12")).To(Equal("QTY 12"))
	})
})

var _ = Describe("ParseLineItems", func() {
	var (
		text  string
		items []receipt.LineItem
	)

	JustBeforeEach(func() {
		items = ParseLineItems(text)
	})

	When("reading a typical receipt", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"HOME DEPOT #1234",
				"HAMMER 12.99",
				"NAILS 2 @ 3.50 7.00",
				"SUBTOTAL 19.99",
				"TAX 1.60",
				"TOTAL 21.59",
				"VISA 21.59",
			}, "\n")
		})

		It("should skip totals, tender and headers", func() {
			Expect(items).To(HaveLen(2))
		})

		It("should order items by confidence", func() {
			Expect(items[0].Description).To(Equal("NAILS"))
			Expect(*items[0].Quantity).To(Equal(2.0))
			Expect(*items[0].UnitPrice).To(Equal(3.50))
			Expect(items[0].TotalPrice).To(Equal(7.00))
			Expect(items[0].Confidence).To(BeNumerically("~", 0.95, 1e-9))

			Expect(items[1].Description).To(Equal("HAMMER"))
			Expect(items[1].TotalPrice).To(Equal(12.99))
			Expect(items[1].Quantity).To(BeNil())
		})
	})

	When("only a quantity and unit price are printed", func() {
		BeforeEach(func() {
			text = "WIDGET 2 x 3.50"
		})

		It("should calculate the total rather than reuse the unit price", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].TotalPrice).To(Equal(7.00))
			Expect(*items[0].UnitPrice).To(Equal(3.50))
		})
	})

	When("a leading quantity and a total are printed", func() {
		BeforeEach(func() {
			text = "3 LIGHT BULBS 9.00"
		})

		It("should derive the unit price", func() {
			Expect(items).To(HaveLen(1))
			Expect(*items[0].Quantity).To(Equal(3.0))
			Expect(*items[0].UnitPrice).To(Equal(3.00))
			Expect(items[0].Description).To(Equal("LIGHT BULBS"))
		})
	})

	When("one price dwarfs the rest", func() {
		BeforeEach(func() {
			lines := []string{}
			for _, name := range []string{"APPLE", "BANANA", "CARROT", "DONUT", "EGGPLANT", "FENNEL", "GRAPE", "HONEY", "KALE", "LEMON"} {
				lines = append(lines, name+" 1.00")
			}
			lines = append(lines, "LAPTOP 500.00")
			text = strings.Join(lines, "\n")
		})

		It("should drop the outlier", func() {
			Expect(items).To(HaveLen(10))
			for _, item := range items {
				Expect(item.Description).NotTo(Equal("LAPTOP"))
			}
		})
	})

	When("descriptions repeat", func() {
		BeforeEach(func() {
			text = "BLUE WIDGET 5.00\nBLUE WIDGET LARGE 6.00\nRED PAINT GALLON 20.00\nRED PAINT QUART 10.00"
		})

		It("should drop near duplicates", func() {
			descriptions := []string{}
			for _, item := range items {
				descriptions = append(descriptions, item.Description)
			}
			Expect(descriptions).To(ConsistOf("BLUE WIDGET", "RED PAINT GALLON", "RED PAINT QUART"))
		})
	})

	When("there are many items", func() {
		BeforeEach(func() {
			lines := []string{}
			for i := 0; i < 25; i++ {
				lines = append(lines, fmt.Sprintf("Widget %c%c 1.00", 'a'+i, 'a'+i))
			}
			text = strings.Join(lines, "\n")
		})

		It("should keep at most twenty", func() {
			Expect(items).To(HaveLen(20))
		})

		It("should keep every confidence in range", func() {
			for _, item := range items {
				Expect(item.Confidence).To(BeNumerically(">=", 0))
				Expect(item.Confidence).To(BeNumerically("<=", 0.95))
			}
		})
	})

	When("nothing looks like an item", func() {
		BeforeEach(func() {
			text = "SUBTOTAL $45.00\nTAX $3.60\nTOTAL\n$48.60"
		})

		It("should return no items", func() {
			Expect(items).To(BeEmpty())
			Expect(LineItemsConfidence(items)).To(Equal(0.1))
		})
	})
})

var _ = Describe("DetectDocumentType", func() {
	It("should recognise invoices", func() {
		doc := DetectDocumentType("INVOICE #991\nBill To: Acme\nDue Date: 02/01/2024")
		Expect(doc.Value).To(Equal(receipt.DocumentInvoice))
		Expect(doc.Confidence).To(BeNumerically("~", 0.8, 1e-9))
	})

	It("should recognise receipts", func() {
		Expect(DetectDocumentType("Thank you for shopping\nCASH 20.00").Value).To(Equal(receipt.DocumentReceipt))
	})

	It("should fall back to unknown", func() {
		doc := DetectDocumentType("lorem ipsum")
		Expect(doc.Value).To(Equal(receipt.DocumentUnknown))
		Expect(doc.Confidence).To(Equal(0.3))
	})
})

var _ = Describe("Score", func() {
	var signals Signals

	BeforeEach(func() {
		signals = Signals{Total: 0.9, LineItems: 0.8, Vendor: 0.9, Date: 0.85, DocumentType: 0.7}
	})

	It("should weight the fields", func() {
		Expect(Score(signals)).To(BeNumerically("~", 0.8475, 1e-9))
	})

	It("should boost consistent maths", func() {
		signals.Math = true
		Expect(Score(signals)).To(BeNumerically("~", 0.8475*1.1, 1e-9))
	})

	It("should penalise weak fields", func() {
		signals.Vendor = 0.3
		Expect(Score(signals)).To(BeNumerically("~", 0.8475-0.2*0.6-0.1, 1e-9))
	})

	It("should cap the score", func() {
		Expect(Score(Signals{Total: 1, LineItems: 1, Vendor: 1, Date: 1, DocumentType: 1, Math: true, Layout: true, Spatial: true})).To(Equal(0.95))
	})

	It("should never go negative", func() {
		Expect(Score(Signals{})).To(BeZero())
	})
})

var _ = Describe("Extract", func() {
	var record *receipt.Record

	When("the receipt is complete", func() {
		BeforeEach(func() {
			record = Extract(strings.Join([]string{
				"HOME DEPOT #1234",
				"01/15/2024",
				"HAMMER 12.99",
				"NAILS 2 @ 3.50 7.00",
				"SUBTOTAL 19.99",
				"TAX 1.60",
				"TOTAL 21.59",
				"VISA 21.59",
			}, "\n"), processedAt, DefaultOptions())
		})

		It("should extract every field", func() {
			Expect(record.Vendor.Value).To(Equal("Home Depot"))
			Expect(record.Date.Value).To(Equal("2024-01-15"))
			Expect(record.Total.Value).To(Equal(21.59))
			Expect(record.Subtotal.Value).To(Equal(19.99))
			Expect(record.Tax.Value).To(Equal(1.60))
			Expect(record.LineItems).To(HaveLen(2))
			Expect(record.DocumentType.Value).To(Equal(receipt.DocumentReceipt))
		})

		It("should score it as excellent", func() {
			Expect(record.Overall).To(BeNumerically(">", 0.8))
			Expect(record.Overall).To(BeNumerically("<=", 0.95))
			Expect(record.Quality).To(Equal(receipt.QualityExcellent))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			record = Extract("", processedAt, DefaultOptions())
		})

		It("should still produce a bounded record", func() {
			Expect(record.Date.Value).To(Equal("2024-03-01"))
			Expect(record.Total.Value).To(BeZero())
			Expect(record.Quality).To(Equal(receipt.QualityPoor))
			for _, c := range []float64{record.Vendor.Confidence, record.Total.Confidence, record.Date.Confidence, record.LineItemsConfidence, record.Overall} {
				Expect(c).To(BeNumerically(">=", 0))
				Expect(c).To(BeNumerically("<=", receipt.MaxConfidence))
			}
		})
	})
})

var _ = Describe("Strategy", func() {
	It("should extract without failing", func() {
		record, err := NewStrategy(DefaultOptions()).Extract(context.Background(), "TARGET\nTOTAL 12.99", processedAt)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Vendor.Value).To(Equal("Target"))
		Expect(record.Total.Value).To(Equal(12.99))
	})
})
