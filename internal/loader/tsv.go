// Package loader reads abundance tables from tab-separated files. The
// expected layout is one header row naming the samples and one row per
// species, first column the species label and the rest raw counts.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gutlab/nutriome/internal/models"
)

// LoadFile parses the TSV at path into an abundance table named name.
func LoadFile(path, name string) (*models.AbundanceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open abundance file: %w", err)
	}
	defer f.Close()

	table, err := Parse(f, name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return table, nil
}

// Parse reads a tab-separated abundance table. Cells must be
// non-negative numbers; anything else is a DataError naming the
// offending row and column.
func Parse(r io.Reader, name string) (*models.AbundanceTable, error) {
	// TrimLeadingSpace would swallow tab delimiters after a space, since
	// csv treats the delimiter itself as trimmable whitespace; cells are
	// trimmed individually below instead.
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'

	header, err := reader.Read()
	if err == io.EOF {
		return nil, models.NewDataError("abundance table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, models.NewDataError("header must name at least one sample column")
	}

	samples := make([]string, 0, len(header)-1)
	seen := make(map[string]bool, len(header)-1)
	for _, raw := range header[1:] {
		sample := strings.TrimSpace(raw)
		if sample == "" {
			return nil, models.NewDataError("header contains an empty sample name")
		}
		if sample == models.MeanSample {
			return nil, models.NewDataError("sample name %q is reserved", models.MeanSample)
		}
		if seen[sample] {
			return nil, models.NewDataError("duplicate sample name %q", sample)
		}
		seen[sample] = true
		samples = append(samples, sample)
	}

	counts := make(map[string]map[string]float64)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, models.NewDataError("line %d: %v", line, err)
		}

		species := strings.TrimSpace(record[0])
		if species == "" {
			return nil, models.NewDataError("line %d: empty species name", line)
		}
		if _, dup := counts[species]; dup {
			return nil, models.NewDataError("line %d: duplicate species %q", line, species)
		}

		row := make(map[string]float64, len(samples))
		for i, sample := range samples {
			cell := strings.TrimSpace(record[i+1])
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, models.NewDataError("line %d, sample %s: non-numeric count %q", line, sample, cell)
			}
			if value < 0 {
				return nil, models.NewDataError("line %d, sample %s: negative count %g", line, sample, value)
			}
			row[sample] = value
		}
		counts[species] = row
	}

	if len(counts) == 0 {
		return nil, models.NewDataError("abundance table has no species rows")
	}

	return models.NewAbundanceTable("", name, counts)
}
