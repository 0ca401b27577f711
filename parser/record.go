package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/go-resolve-collections/models"
)

// unnamedOwner is the placeholder the marketplace shows for owners without a name.
const unnamedOwner = "Unnamed"

// ValidateRecord ensures the resolver filled the fields every row needs.
func ValidateRecord(r *models.ResolvedRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ScanAddress) == "" {
		return fmt.Errorf("record missing scan address")
	}
	if _, err := time.Parse(models.DateLayout, r.TodaysDate); err != nil {
		return fmt.Errorf("record for %s has invalid date %q", r.ScanAddress, r.TodaysDate)
	}
	if r.Premium != "" && r.Premium != models.PremiumYes {
		return fmt.Errorf("record for %s has invalid premium flag %q", r.ScanAddress, r.Premium)
	}
	return nil
}

// AssetNumber returns the final "/"-delimited segment of an asset URL.
func AssetNumber(assetURL string) string {
	if i := strings.LastIndex(assetURL, "/"); i >= 0 {
		return assetURL[i+1:]
	}
	return assetURL
}

// PremiumFlag maps the owner-name text to the premium column.
func PremiumFlag(ownerName string, visible bool) string {
	if visible && !strings.Contains(ownerName, unnamedOwner) {
		return models.PremiumYes
	}
	return ""
}

// NormalizeCollection strips embedded double quotes from the collection label.
func NormalizeCollection(text string) string {
	return strings.ReplaceAll(text, `"`, "")
}

// FormatDate renders t in the output store's date layout.
func FormatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}
