package libraryqc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Fastp is one row of a fastp summary csv.
type Fastp struct {
	SampleID                  string
	TotalReadsBeforeFiltering *int64
	TotalReadsAfterFiltering  *int64
	TotalBasesBeforeFiltering *int64
	TotalBasesAfterFiltering  *int64
	Q30RateBeforeFiltering    *float64
	Q30RateAfterFiltering     *float64
	GCContentBeforeFiltering  *float64
}

// Quast is one row of a QUAST summary csv.
type Quast struct {
	AssemblyID    string
	TotalLength   *int64
	NumContigs    *int64
	LargestContig *int64
	AssemblyN50   *int64
	NumNPer100kb  *float64
}

// ParseFastp reads all rows of a fastp csv. Numeric fields which are
// missing or can't be parsed are nil.
func ParseFastp(r io.Reader) ([]Fastp, error) {
	rows, err := readRows(r, "sample_id")
	if err != nil {
		return nil, fmt.Errorf("parsing fastp csv: %w", err)
	}
	ret := make([]Fastp, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, Fastp{
			SampleID:                  row["sample_id"],
			TotalReadsBeforeFiltering: row.integer("total_reads_before_filtering"),
			TotalReadsAfterFiltering:  row.integer("total_reads_after_filtering"),
			TotalBasesBeforeFiltering: row.integer("total_bases_before_filtering"),
			TotalBasesAfterFiltering:  row.integer("total_bases_after_filtering"),
			Q30RateBeforeFiltering:    row.real("q30_rate_before_filtering"),
			Q30RateAfterFiltering:     row.real("q30_rate_after_filtering"),
			GCContentBeforeFiltering:  row.real("gc_content_before_filtering"),
		})
	}
	return ret, nil
}

// ParseQuast reads all rows of a QUAST csv. Numeric fields which are
// missing or can't be parsed are nil.
func ParseQuast(r io.Reader) ([]Quast, error) {
	rows, err := readRows(r, "assembly_id")
	if err != nil {
		return nil, fmt.Errorf("parsing quast csv: %w", err)
	}
	ret := make([]Quast, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, Quast{
			AssemblyID:    row["assembly_id"],
			TotalLength:   row.integer("total_length"),
			NumContigs:    row.integer("num_contigs"),
			LargestContig: row.integer("largest_contig"),
			AssemblyN50:   row.integer("assembly_N50"),
			NumNPer100kb:  row.real("num_N_per_100_kb"),
		})
	}
	return ret, nil
}

type row map[string]string

func (r row) integer(field string) *int64 {
	i, err := strconv.ParseInt(r[field], 10, 64)
	if err != nil {
		return nil
	}
	return &i
}

func (r row) real(field string) *float64 {
	f, err := strconv.ParseFloat(r[field], 64)
	if err != nil {
		return nil
	}
	return &f
}

// readRows maps every record to the header, which must contain key
func readRows(r io.Reader, key string) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, err
	}
	if !slices.Contains(header, key) {
		return nil, fmt.Errorf("missing column %q", key)
	}

	var rows []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		m := make(row, len(header))
		for i, name := range header {
			if i < len(rec) {
				m[name] = rec[i]
			}
		}
		rows = append(rows, m)
	}
}
