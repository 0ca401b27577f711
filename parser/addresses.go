package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aluiziolira/go-resolve-collections/models"
)

// AddressColumn is the input column holding collection slugs.
const AddressColumn = "Address"

// ReadAddresses reads the Address column of a comma-separated table, keeping
// row order. Blank cells are dropped.
func ReadAddresses(r io.Reader) ([]models.Address, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("address file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read address header: %w", err)
	}

	column := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == AddressColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("address file has no %q column", AddressColumn)
	}

	var out []models.Address
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read address row: %w", err)
		}
		if column >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}
		out = append(out, models.Address(value))
	}
	return out, nil
}

// LoadAddresses opens path and reads its Address column.
func LoadAddresses(path string) ([]models.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open address file: %w", err)
	}
	defer f.Close()
	return ReadAddresses(f)
}
