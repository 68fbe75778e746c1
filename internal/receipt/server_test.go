package receipt

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/xuri/excelize/v2"

	"github.com/falvarez/receipt-manager/internal/extraction"
)

func multipartUpload(url, filename string, data []byte) (*http.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	req, err := http.NewRequest(http.MethodPost, url+"/api/uploads", &body)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return http.DefaultClient.Do(req)
}

var _ = Describe("Server", func() {
	var (
		store       *mockStore
		extractor   *mockExtractor
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		// Specs in this file issue at most three requests each.
		ghttpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	}

	BeforeEach(func() {
		store = newMockStore()
		extractor = newMockExtractor()
		service = NewServiceWithDeps(store, extractor, stubNormalize, &stubIDGenerator{}, &stubClock{now: testNow})
		server = NewServerWithMux(service, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("GET /", func() {
		It("should serve the embedded UI", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Receipt Manager"))
		})
	})

	Describe("POST /api/uploads", func() {
		When("extraction succeeds", func() {
			BeforeEach(func() {
				extractor.candidate = &extraction.Candidate{
					MerchantName: strPtr("CVS Pharmacy"),
					TotalAmount:  floatPtr(9.99),
					Date:         strPtr("2024-02-01"),
					Category:     strPtr("Services"),
					Currency:     "USD",
				}
			})

			It("should return the staged draft", func() {
				resp, err := multipartUpload(ghttpServer.URL(), "receipt.jpg", []byte("image-bytes"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var draft Draft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.MerchantName).To(Equal("CVS Pharmacy"))
				Expect(draft.Category).To(Equal(CategoryServices))
			})
		})

		When("no file is attached", func() {
			It("should return 400", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/uploads", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the upload exceeds the size limit", func() {
			It("should return 400 with a size message before extraction runs", func() {
				oversized := bytes.Repeat([]byte{0xff}, int(maxUploadSize)+1)
				resp, err := multipartUpload(ghttpServer.URL(), "huge.jpg", oversized)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var payload map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
				Expect(payload["error"]).To(ContainSubstring("too large"))
				Expect(extractor.callCount()).To(BeZero())
			})
		})

		When("the model returns a malformed response", func() {
			BeforeEach(func() {
				extractor.err = extraction.ErrMalformedResponse
			})

			It("should return 502 with the error message and leave the store unmutated", func() {
				resp, err := multipartUpload(ghttpServer.URL(), "receipt.jpg", []byte("image-bytes"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				var payload map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
				Expect(payload["error"]).NotTo(BeEmpty())

				records, _ := store.List()
				Expect(records).To(BeEmpty())
			})
		})

		When("the service quota is exhausted", func() {
			BeforeEach(func() {
				extractor.err = extraction.ErrQuotaExceeded
			})

			It("should return 429", func() {
				resp, err := multipartUpload(ghttpServer.URL(), "receipt.jpg", []byte("image-bytes"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			})
		})
	})

	Describe("review flow", func() {
		BeforeEach(func() {
			extractor.candidate = &extraction.Candidate{
				MerchantName: strPtr("Uber Technologies"),
				TotalAmount:  floatPtr(24.50),
				Date:         strPtr("2023-10-25"),
				Category:     strPtr("Transport"),
				Currency:     "USD",
			}
			resp, err := multipartUpload(ghttpServer.URL(), "receipt.jpg", []byte("image-bytes"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		Describe("GET /api/review", func() {
			It("should return the pending draft", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/review")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var draft Draft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.MerchantName).To(Equal("Uber Technologies"))
			})
		})

		Describe("POST /api/review/confirm", func() {
			When("the customer document is supplied", func() {
				It("should commit the record and return 201", func() {
					edits, _ := json.Marshal(ReviewEdits{
						MerchantName:     "Uber Technologies",
						TotalAmount:      "24.50",
						CustomerDocument: "1020304050",
						Category:         "Transport",
						Date:             "2023-10-25",
					})
					resp, err := http.Post(ghttpServer.URL()+"/api/review/confirm", "application/json", bytes.NewReader(edits))
					Expect(err).NotTo(HaveOccurred())
					defer resp.Body.Close()

					Expect(resp.StatusCode).To(Equal(http.StatusCreated))
					var record Record
					Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
					Expect(record.ID).To(Equal("id-1"))
					Expect(record.Status).To(Equal(StatusVerified))

					records, _ := store.List()
					Expect(records).To(HaveLen(1))
				})
			})

			When("the customer document is empty", func() {
				It("should return 400 and not commit", func() {
					edits, _ := json.Marshal(ReviewEdits{TotalAmount: "24.50"})
					resp, err := http.Post(ghttpServer.URL()+"/api/review/confirm", "application/json", bytes.NewReader(edits))
					Expect(err).NotTo(HaveOccurred())
					defer resp.Body.Close()

					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					records, _ := store.List()
					Expect(records).To(BeEmpty())
				})
			})
		})

		Describe("POST /api/review/cancel", func() {
			It("should discard the draft", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/review/cancel", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

				getResp, err := http.Get(ghttpServer.URL() + "/api/review")
				Expect(err).NotTo(HaveOccurred())
				getResp.Body.Close()
				Expect(getResp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("GET /api/receipts", func() {
		BeforeEach(func() {
			for _, r := range SeedRecords() {
				Expect(store.Append(r)).To(Succeed())
			}
		})

		It("should return the collection", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			Expect(records).To(HaveLen(3))
		})

		It("should filter with the q parameter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?q=starbucks")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).To(Succeed())
			Expect(records).To(HaveLen(1))
			Expect(records[0].MerchantName).To(Equal("Starbucks Coffee"))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			for _, r := range SeedRecords() {
				Expect(store.Append(r)).To(Succeed())
			}
		})

		It("should delete the record and return 204", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/r-101", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			records, _ := store.List()
			Expect(records).To(HaveLen(2))
		})

		It("should return 204 for an unknown ID as well", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/receipts/nope", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			records, _ := store.List()
			Expect(records).To(HaveLen(3))
		})
	})

	Describe("GET /api/summary", func() {
		It("should return the dashboard tiles", func() {
			for _, r := range SeedRecords() {
				Expect(store.Append(r)).To(Succeed())
			}

			resp, err := http.Get(ghttpServer.URL() + "/api/summary")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var summary Summary
			Expect(json.NewDecoder(resp.Body).Decode(&summary)).To(Succeed())
			Expect(summary.ReceiptCount).To(Equal(3))
			Expect(summary.MonthlyTrend).NotTo(BeEmpty())
		})
	})

	Describe("GET /api/export", func() {
		It("should return an XLSX attachment", func() {
			for _, r := range SeedRecords() {
				Expect(store.Append(r)).To(Succeed())
			}

			resp, err := http.Get(ghttpServer.URL() + "/api/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("attachment"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(body)).To(BeNumerically(">", 0))
		})

		It("should carry record fields through to the workbook cells", func() {
			for _, r := range SeedRecords() {
				Expect(store.Append(r)).To(Succeed())
			}

			resp, err := http.Get(ghttpServer.URL() + "/api/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())

			f, err := excelize.OpenReader(bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			merchant, err := f.GetCellValue("Expenses", "C2")
			Expect(err).NotTo(HaveOccurred())
			Expect(merchant).To(Equal("AWS Services"))
			status, err := f.GetCellValue("Expenses", "G2")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal("ReviewNeeded"))
			items, err := f.GetCellValue("Expenses", "H2")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal("Monthly Hosting ($145.00)"))
		})
	})
})
