// Package csvio reads product CSV submissions and writes result tables.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"image_batch/internal/models"
)

const URLSeparator = ", "

var ResultHeader = []string{"Serial Number", "Product Name", "Input Image Urls", "Output Image Urls"}

var (
	ErrEmpty       = errors.New("csv has no data")
	ErrTooManyRows = errors.New("csv has too many rows")
)

var validate = validator.New()

// ParseProducts reads a product CSV whose first line is a header. Rows with
// fewer than three columns or without a valid image URL are skipped. maxRows
// bounds the number of surviving rows; zero means unbounded.
func ParseProducts(r io.Reader, maxRows int) ([]models.ProductRow, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []models.ProductRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row, ok := parseRecord(record)
		if !ok {
			continue
		}
		if maxRows > 0 && len(rows) == maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(record []string) (models.ProductRow, bool) {
	if len(record) < 3 {
		return models.ProductRow{}, false
	}

	row := models.ProductRow{
		SerialNumber:   strings.TrimSpace(record[0]),
		ProductName:    strings.TrimSpace(record[1]),
		InputImageURLs: SplitURLs(record[2]),
	}
	if err := validate.Struct(row); err != nil {
		return models.ProductRow{}, false
	}
	return row, true
}

// SplitURLs splits a comma separated URL cell, trimming blanks and dropping
// empty entries. It accepts both "," and ", " joined lists.
func SplitURLs(cell string) []string {
	var urls []string
	for _, part := range strings.Split(cell, ",") {
		if u := strings.TrimSpace(part); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func JoinURLs(urls []string) string {
	return strings.Join(urls, URLSeparator)
}

func WriteResult(w io.Writer, rows []models.OutputRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ResultHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.SerialNumber, row.ProductName, row.InputImageURLs, row.OutputImageURLs}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
