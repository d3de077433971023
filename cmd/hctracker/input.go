package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/hctracker/pkg/extract"
	"github.com/cuemby/hctracker/pkg/types"
	"gopkg.in/yaml.v3"
)

// Manifest lists the networks of a batch run
type Manifest struct {
	Networks []ManifestEntry `yaml:"networks"`
}

// ManifestEntry is one network of a batch run. Paths are relative to the
// manifest file.
type ManifestEntry struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Report    string `yaml:"report"`
	Inventory string `yaml:"inventory"`
	Ignore    string `yaml:"ignore"`
	Date      string `yaml:"date"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %v", err)
	}
	if len(m.Networks) == 0 {
		return nil, fmt.Errorf("manifest %s lists no networks", path)
	}

	base := filepath.Dir(path)
	for i := range m.Networks {
		e := &m.Networks[i]
		if e.ID == "" {
			return nil, fmt.Errorf("manifest entry %d has no id", i)
		}
		if e.Report == "" {
			return nil, fmt.Errorf("manifest entry %s has no report", e.ID)
		}
		e.Report = resolve(base, e.Report)
		e.Inventory = resolve(base, e.Inventory)
		e.Ignore = resolve(base, e.Ignore)
	}
	return &m, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// readCSV reads every record of a CSV file, dropping the header row when
// header is set. Rows may have differing widths.
func readCSV(path string, header bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		records = append(records, rec)
	}
	if header && len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}

func readReport(path string, header bool) ([]extract.Row, error) {
	records, err := readCSV(path, header)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %v", err)
	}
	rows := make([]extract.Row, len(records))
	for i, rec := range records {
		rows[i] = extract.Row(rec)
	}
	return rows, nil
}

// readInventory reads node_id,shelf_type,mnemonic[,report_date] rows.
// Rows without a numeric node id are skipped.
func readInventory(path string, header bool, reportDate time.Time) ([]types.InventoryRecord, error) {
	if path == "" {
		return nil, nil
	}
	records, err := readCSV(path, header)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %v", err)
	}

	inv := make([]types.InventoryRecord, 0, len(records))
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil || id < 0 {
			continue
		}
		date := reportDate
		if len(rec) > 3 {
			if t, ok := extract.ParseDate(rec[3]); ok {
				date = t
			}
		}
		inv = append(inv, types.InventoryRecord{
			NodeID:     id,
			ShelfType:  strings.TrimSpace(rec[1]),
			Mnemonic:   strings.TrimSpace(rec[2]),
			ReportDate: date,
		})
	}
	return inv, nil
}

// readIgnoreLines returns the lines of an ignore file. A nil slice means no
// ignore list was supplied: path is empty or the file does not exist.
func readIgnoreLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore list: %v", err)
	}
	defer f.Close()

	lines := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore list: %v", err)
	}
	return lines, nil
}

// parseReportDate parses the --date flag; empty means today
func parseReportDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	t, ok := extract.ParseDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognised report date %q", s)
	}
	return t, nil
}
