// Package models defines data structures for the resolver.
package models

import "time"

// DateLayout is the layout of ResolvedRecord.TodaysDate.
const DateLayout = "01-02-2006"

// PremiumYes marks a collection whose owner has a name.
const PremiumYes = "Y"

// Address is a marketplace collection slug.
type Address string

// ResolvedRecord is one row of the output store. Optional fields are left
// empty when the page did not show them.
type ResolvedRecord struct {
	TodaysDate     string `csv:"TodaysDate" json:"todays_date"`
	ScanAddress    string `csv:"ScanAddress" json:"scan_address"`
	CollectionName string `csv:"CollectionName" json:"collection_name"`
	Collection     string `csv:"Collection" json:"collection"`
	AssetNumber    string `csv:"AssetNumber" json:"asset_number"`
	BestOffer      string `csv:"BestOffer" json:"best_offer"`
	Premium        string `csv:"Premium" json:"premium"`
}

// RecordHeader returns the column names of the output store in order.
func RecordHeader() []string {
	return []string{"TodaysDate", "ScanAddress", "CollectionName", "Collection", "AssetNumber", "BestOffer", "Premium"}
}

// Row returns the record's values in RecordHeader order.
func (r *ResolvedRecord) Row() []string {
	return []string{
		r.TodaysDate,
		r.ScanAddress,
		r.CollectionName,
		r.Collection,
		r.AssetNumber,
		r.BestOffer,
		r.Premium,
	}
}

// RunResult holds the overall result of a batch run.
type RunResult struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalCount      int
	ResolvedCount   int
	SkippedCount    int
	FailedCount     int
	// CanceledCount is addresses that shutdown stopped before an outcome.
	CanceledCount   int
	SkipsByStage    map[string]int
	ErrorsByType    map[string]int
	RetryCount      int
	FailedAddresses []string
}
