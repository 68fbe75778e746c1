package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/falvarez/receipt-manager/internal/extraction"
	"github.com/falvarez/receipt-manager/internal/imaging"
)

var _ = Describe("Staging", func() {
	var (
		staging *Staging
		img     *imaging.Image
		today   time.Time
	)

	BeforeEach(func() {
		staging = &Staging{}
		img = &imaging.Image{Data: []byte("jpeg-bytes"), MIMEType: "image/jpeg"}
		today = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	})

	Describe("Begin", func() {
		When("the candidate has no fields at all", func() {
			BeforeEach(func() {
				staging.Begin(&extraction.Candidate{}, img, 1, today)
			})

			It("should default every field", func() {
				draft, err := staging.Snapshot()
				Expect(err).NotTo(HaveOccurred())
				Expect(draft.MerchantName).To(Equal("Unknown Merchant"))
				Expect(draft.TotalAmount).To(BeZero())
				Expect(draft.Currency).To(Equal("USD"))
				Expect(draft.Date).To(Equal("2024-03-15"))
				Expect(draft.Category).To(Equal(CategoryOther))
				Expect(draft.Items).To(BeEmpty())
			})

			It("should embed the normalized image", func() {
				draft, _ := staging.Snapshot()
				Expect(draft.ImageURL).To(Equal(img.DataURI()))
			})
		})

		When("the candidate category is not in the fixed set", func() {
			It("should canonicalize to Other", func() {
				staging.Begin(&extraction.Candidate{Category: strPtr("Groceries & Stuff")}, img, 1, today)
				draft, _ := staging.Snapshot()
				Expect(draft.Category).To(Equal(CategoryOther))
			})
		})

		When("the candidate amount is negative", func() {
			It("should fall back to zero", func() {
				staging.Begin(&extraction.Candidate{TotalAmount: floatPtr(-3)}, img, 1, today)
				draft, _ := staging.Snapshot()
				Expect(draft.TotalAmount).To(BeZero())
			})
		})
	})

	Describe("Snapshot", func() {
		When("nothing is staged", func() {
			It("should return ErrNothingStaged", func() {
				_, err := staging.Snapshot()
				Expect(err).To(MatchError(ErrNothingStaged))
			})
		})

		It("should return an independent copy of the items", func() {
			staging.Begin(&extraction.Candidate{
				Items: []extraction.CandidateItem{{Description: "Latte", Price: 5.50}},
			}, img, 1, today)

			first, _ := staging.Snapshot()
			first.Items[0].Description = "mutated"

			second, _ := staging.Snapshot()
			Expect(second.Items[0].Description).To(Equal("Latte"))
		})
	})

	Describe("Confirm", func() {
		BeforeEach(func() {
			staging.Begin(&extraction.Candidate{
				MerchantName: strPtr("Starbucks Coffee"),
				TotalAmount:  floatPtr(12.75),
				Date:         strPtr("2023-10-26"),
				Category:     strPtr("Food"),
				Items:        []extraction.CandidateItem{{Description: "Latte", Price: 5.50}},
			}, img, 1, today)
		})

		When("the customer document is empty", func() {
			It("should return ErrDocumentRequired", func() {
				_, err := staging.Confirm(ReviewEdits{TotalAmount: "12.75"}, "id-1", today)
				Expect(err).To(MatchError(ErrDocumentRequired))
			})

			It("should also reject whitespace-only documents", func() {
				_, err := staging.Confirm(ReviewEdits{CustomerDocument: "   "}, "id-1", today)
				Expect(err).To(MatchError(ErrDocumentRequired))
			})
		})

		When("the amount is not numeric", func() {
			It("should return ErrInvalidAmount", func() {
				_, err := staging.Confirm(ReviewEdits{
					CustomerDocument: "12345",
					TotalAmount:      "12,75",
				}, "id-1", today)
				Expect(err).To(MatchError(ErrInvalidAmount))
			})
		})

		When("the amount is negative", func() {
			It("should return ErrInvalidAmount", func() {
				_, err := staging.Confirm(ReviewEdits{
					CustomerDocument: "12345",
					TotalAmount:      "-5",
				}, "id-1", today)
				Expect(err).To(MatchError(ErrInvalidAmount))
			})
		})

		When("the amount is not finite", func() {
			// strconv.ParseFloat accepts these spellings without error.
			It("should reject NaN", func() {
				_, err := staging.Confirm(ReviewEdits{
					CustomerDocument: "12345",
					TotalAmount:      "NaN",
				}, "id-1", today)
				Expect(err).To(MatchError(ErrInvalidAmount))
			})

			It("should reject Inf", func() {
				_, err := staging.Confirm(ReviewEdits{
					CustomerDocument: "12345",
					TotalAmount:      "+Inf",
				}, "id-1", today)
				Expect(err).To(MatchError(ErrInvalidAmount))
			})
		})

		When("the edits are valid", func() {
			var record *Record

			BeforeEach(func() {
				var err error
				record, err = staging.Confirm(ReviewEdits{
					MerchantName:     "Starbucks Coffee",
					TotalAmount:      "12.75",
					Currency:         "usd",
					Date:             "2023-10-26",
					Category:         "Food",
					CustomerDocument: "987654321",
				}, "id-1", today)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should build a verified record with the assigned ID", func() {
				Expect(record.ID).To(Equal("id-1"))
				Expect(record.Status).To(Equal(StatusVerified))
				Expect(record.TotalAmount).To(Equal(12.75))
				Expect(record.Currency).To(Equal("USD"))
				Expect(record.UploadTimestamp).To(Equal(today.UnixMilli()))
			})

			It("should carry the staged items and image", func() {
				Expect(record.Items).To(HaveLen(1))
				Expect(record.ImageURL).To(Equal(img.DataURI()))
			})
		})

		When("edited fields are left blank", func() {
			It("should fall back to defaults rather than commit empties", func() {
				record, err := staging.Confirm(ReviewEdits{
					CustomerDocument: "987654321",
					Date:             "not-a-date",
				}, "id-1", today)
				Expect(err).NotTo(HaveOccurred())
				Expect(record.MerchantName).To(Equal("Unknown Merchant"))
				Expect(record.Currency).To(Equal("USD"))
				Expect(record.Date).To(Equal("2024-03-15"))
				Expect(record.Category).To(Equal(CategoryOther))
				Expect(record.TotalAmount).To(BeZero())
			})
		})
	})

	Describe("Cancel", func() {
		It("should discard the candidate entirely", func() {
			staging.Begin(&extraction.Candidate{}, img, 1, today)
			staging.Cancel()
			Expect(staging.Pending()).To(BeFalse())
			_, err := staging.Snapshot()
			Expect(err).To(MatchError(ErrNothingStaged))
		})
	})
})
