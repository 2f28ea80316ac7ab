package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/xuri/excelize/v2"
)

var feedColumns = []string{
	"transaction_id",
	"sold_on",
	"customer_id",
	"customer_name",
	"customer_address",
	"region_id",
	"region_name",
	"category_id",
	"category_name",
	"product_id",
	"product_name",
	"quantity",
	"unit_price",
	"discount",
	"amount",
}

var optionalFeedColumns = map[string]bool{
	"customer_address": true,
	"discount":         true,
}

type feedRow struct {
	line int
	req  domain.InsertTransactionRequest
}

func readFeed(format domain.FeedFormat, r io.Reader) ([]feedRow, error) {
	var (
		records [][]string
		lines   []int
	)
	switch domain.FeedFormat(strings.ToLower(string(format))) {
	case domain.FeedCSV:
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFeed, err)
			}
			line, _ := reader.FieldPos(0)
			records = append(records, record)
			lines = append(lines, line)
		}
	case domain.FeedXLSX:
		book, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFeed, err)
		}
		defer book.Close()

		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidFeed)
		}
		all, err := book.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFeed, err)
		}
		records = all
		for i := range all {
			lines = append(lines, i+1)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidFeedFormat, format)
	}

	return parseRecords(records, lines)
}

// parseRecords maps records to requests. lines holds the 1-based source line
// of each record, header included.
func parseRecords(records [][]string, lines []int) ([]feedRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", domain.ErrInvalidFeed)
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range feedColumns {
		if _, ok := index[col]; !ok && !optionalFeedColumns[col] {
			return nil, fmt.Errorf("%w: missing column %s", domain.ErrInvalidFeed, col)
		}
	}

	rows := make([]feedRow, 0, len(records)-1)
	for i, record := range records[1:] {
		line := lines[i+1]
		if blankRecord(record) {
			continue
		}
		req, err := parseRecord(index, record)
		if err != nil {
			return nil, &domain.RowError{Line: line, Err: err}
		}
		rows = append(rows, feedRow{line: line, req: req})
	}
	return rows, nil
}

func parseRecord(index map[string]int, record []string) (domain.InsertTransactionRequest, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	soldOn, err := parseSoldOn(get("sold_on"))
	if err != nil {
		return domain.InsertTransactionRequest{}, &domain.ValidationError{Field: "sold_on", Reason: "invalid", Actual: get("sold_on")}
	}
	quantity, err := strconv.ParseInt(get("quantity"), 10, 64)
	if err != nil {
		return domain.InsertTransactionRequest{}, &domain.ValidationError{Field: "quantity", Reason: "invalid", Actual: get("quantity")}
	}
	unitPrice, err := domain.ParseMoney(get("unit_price"))
	if err != nil {
		return domain.InsertTransactionRequest{}, &domain.ValidationError{Field: "unit_price", Reason: "invalid", Actual: get("unit_price")}
	}
	var discount int64
	if raw := get("discount"); raw != "" {
		discount, err = domain.ParseMoney(raw)
		if err != nil {
			return domain.InsertTransactionRequest{}, &domain.ValidationError{Field: "discount", Reason: "invalid", Actual: raw}
		}
	}
	amount, err := domain.ParseMoney(get("amount"))
	if err != nil {
		return domain.InsertTransactionRequest{}, &domain.ValidationError{Field: "amount", Reason: "invalid", Actual: get("amount")}
	}

	return domain.InsertTransactionRequest{
		TransactionID:   get("transaction_id"),
		SoldOn:          soldOn,
		CustomerID:      get("customer_id"),
		CustomerName:    get("customer_name"),
		CustomerAddress: get("customer_address"),
		RegionID:        get("region_id"),
		RegionName:      get("region_name"),
		CategoryID:      get("category_id"),
		CategoryName:    get("category_name"),
		ProductID:       get("product_id"),
		ProductName:     get("product_name"),
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		Discount:        discount,
		Amount:          amount,
	}, nil
}

func parseSoldOn(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
