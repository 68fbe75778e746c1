package receipt

// seedImage is a 1x1 transparent GIF data URI. Seed records need a thumbnail
// the table can render without reaching outside the store.
const seedImage = "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

// SeedRecords returns the example records a fresh (or unreadable) store starts
// with. The store never initializes empty; a small known data set makes the UI
// legible on first run.
func SeedRecords() []*Record {
	return []*Record{
		{
			ID:               "r-103",
			MerchantName:     "AWS Services",
			TotalAmount:      145.00,
			Currency:         "USD",
			Date:             "2023-10-27",
			Category:         CategorySoftware,
			CustomerDocument: "800123456",
			Items:            []Item{{Description: "Monthly Hosting", Price: 145.00}},
			ImageURL:         seedImage,
			Status:           StatusReviewNeeded,
			UploadTimestamp:  1698392800000,
		},
		{
			ID:               "r-102",
			MerchantName:     "Starbucks Coffee",
			TotalAmount:      12.75,
			Currency:         "USD",
			Date:             "2023-10-26",
			Category:         CategoryFood,
			CustomerDocument: "987654321",
			Items: []Item{
				{Description: "Latte", Price: 5.50},
				{Description: "Sandwich", Price: 7.25},
			},
			ImageURL:        seedImage,
			Status:          StatusVerified,
			UploadTimestamp: 1698306400000,
		},
		{
			ID:               "r-101",
			MerchantName:     "Uber Technologies",
			TotalAmount:      24.50,
			Currency:         "USD",
			Date:             "2023-10-25",
			Category:         CategoryTransport,
			CustomerDocument: "1020304050",
			Items:            []Item{{Description: "Airport Trip", Price: 24.50}},
			ImageURL:         seedImage,
			Status:           StatusVerified,
			UploadTimestamp:  1698220000000,
		},
	}
}
