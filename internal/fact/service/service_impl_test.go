package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/fact/repository"
	"github.com/smallbiznis/retailsales/pkg/db"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupFactService(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&domain.SalesFact{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})
	return conn, svc
}

func validRequest(id string) domain.InsertTransactionRequest {
	return domain.InsertTransactionRequest{
		TransactionID:   id,
		SoldOn:          time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC),
		CustomerID:      "c1",
		CustomerName:    "Ada",
		CustomerAddress: "123 Main St",
		RegionID:        "r1",
		RegionName:      "North",
		CategoryID:      "electronics",
		CategoryName:    "Electronics",
		ProductID:       "p1",
		ProductName:     "Headphones",
		Quantity:        2,
		UnitPrice:       5000,
		Discount:        1000,
		Amount:          9000,
	}
}

func countFacts(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&domain.SalesFact{}).Count(&count).Error; err != nil {
		t.Fatalf("count facts: %v", err)
	}
	return count
}

func TestInsertTransaction(t *testing.T) {
	conn, svc := setupFactService(t)
	ctx := context.Background()

	id, err := svc.InsertTransaction(ctx, validRequest("tx-1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected generated id")
	}

	var stored domain.SalesFact
	if err := conn.First(&stored, "transaction_id = ?", "tx-1").Error; err != nil {
		t.Fatalf("load fact: %v", err)
	}
	if !stored.SoldOn.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected sold_on truncated to day, got %v", stored.SoldOn)
	}
	if stored.Amount != 9000 {
		t.Fatalf("expected amount 9000, got %d", stored.Amount)
	}

	_, err = svc.InsertTransaction(ctx, validRequest("tx-1"))
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}
	if got := countFacts(t, conn); got != 1 {
		t.Fatalf("expected 1 fact, got %d", got)
	}
}

func TestInsertTransactionRejectsAmountMismatch(t *testing.T) {
	conn, svc := setupFactService(t)

	req := validRequest("tx-bad")
	req.Amount = 9500

	_, err := svc.InsertTransaction(context.Background(), req)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if vErr.Field != "amount" || vErr.Expected != "90.00" || vErr.Actual != "95.00" {
		t.Fatalf("unexpected validation error: %+v", vErr)
	}
	if got := countFacts(t, conn); got != 0 {
		t.Fatalf("expected no write, got %d facts", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*domain.InsertTransactionRequest)
		field string
	}{
		{name: "missing transaction", mut: func(r *domain.InsertTransactionRequest) { r.TransactionID = "  " }, field: "transaction_id"},
		{name: "missing customer", mut: func(r *domain.InsertTransactionRequest) { r.CustomerID = "" }, field: "customer_id"},
		{name: "missing date", mut: func(r *domain.InsertTransactionRequest) { r.SoldOn = time.Time{} }, field: "sold_on"},
		{name: "zero quantity", mut: func(r *domain.InsertTransactionRequest) { r.Quantity = 0 }, field: "quantity"},
		{name: "negative price", mut: func(r *domain.InsertTransactionRequest) { r.UnitPrice = -1 }, field: "unit_price"},
		{name: "negative discount", mut: func(r *domain.InsertTransactionRequest) { r.Discount = -1 }, field: "discount"},
		{name: "discount over gross", mut: func(r *domain.InsertTransactionRequest) { r.Discount = 20000; r.Amount = -10000 }, field: "discount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("tx")
			tc.mut(&req)
			err := validate(normalizeRequest(req))
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
			}
		})
	}

	if err := validate(normalizeRequest(validRequest("tx"))); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

const csvFeed = `transaction_id,sold_on,customer_id,customer_name,customer_address,region_id,region_name,category_id,category_name,product_id,product_name,quantity,unit_price,discount,amount
t1,2024-01-01,c1,Ada,123 Main St,r1,North,electronics,Electronics,p1,Headphones,100,5.00,0,500.00

t2,2024-01-02,c1,Ada,456 Oak Ave,r1,North,electronics,Electronics,p1,Headphones,20,5.00,10.00,90.00
`

func TestImportFeedCSV(t *testing.T) {
	conn, svc := setupFactService(t)

	res, err := svc.ImportFeed(context.Background(), domain.FeedCSV, strings.NewReader(csvFeed))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", res.Rows)
	}
	if got := countFacts(t, conn); got != 2 {
		t.Fatalf("expected 2 facts, got %d", got)
	}
}

func TestImportFeedIsAllOrNothing(t *testing.T) {
	conn, svc := setupFactService(t)

	feed := csvFeed + "t3,2024-01-03,c2,Bob,,r1,North,toys,Toys,p2,Kite,1,3.00,0,4.00\n"
	_, err := svc.ImportFeed(context.Background(), domain.FeedCSV, strings.NewReader(feed))

	var rowErr *domain.RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected row error, got %v", err)
	}
	if rowErr.Line != 5 {
		t.Fatalf("expected line 5, got %d", rowErr.Line)
	}
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "amount" {
		t.Fatalf("expected amount validation error, got %v", err)
	}
	if got := countFacts(t, conn); got != 0 {
		t.Fatalf("expected no facts after rejected feed, got %d", got)
	}
}

func TestImportFeedRejectsRepeatedTransaction(t *testing.T) {
	_, svc := setupFactService(t)

	lines := strings.Split(strings.TrimSpace(csvFeed), "\n")
	feed := strings.Join(append(lines, lines[1]), "\n")
	_, err := svc.ImportFeed(context.Background(), domain.FeedCSV, strings.NewReader(feed))
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate transaction, got %v", err)
	}
}

func TestImportFeedValidatesHeaderAndFormat(t *testing.T) {
	_, svc := setupFactService(t)
	ctx := context.Background()

	_, err := svc.ImportFeed(ctx, domain.FeedCSV, strings.NewReader("transaction_id,sold_on\nt1,2024-01-01\n"))
	if !errors.Is(err, domain.ErrInvalidFeed) {
		t.Fatalf("expected invalid feed, got %v", err)
	}

	_, err = svc.ImportFeed(ctx, domain.FeedFormat("json"), strings.NewReader("{}"))
	if !errors.Is(err, domain.ErrInvalidFeedFormat) {
		t.Fatalf("expected invalid feed format, got %v", err)
	}
}

func TestImportFeedXLSX(t *testing.T) {
	conn, svc := setupFactService(t)

	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	for i, line := range strings.Split(strings.TrimSpace(csvFeed), "\n") {
		if line == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := strings.Split(line, ",")
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	res, err := svc.ImportFeed(context.Background(), domain.FeedXLSX, buf)
	if err != nil {
		t.Fatalf("import xlsx: %v", err)
	}
	if res.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", res.Rows)
	}
	if got := countFacts(t, conn); got != 2 {
		t.Fatalf("expected 2 facts, got %d", got)
	}
}

func TestAddressChanges(t *testing.T) {
	_, svc := setupFactService(t)
	ctx := context.Background()

	insert := func(id, customer, address string, day int) {
		req := validRequest(id)
		req.CustomerID = customer
		req.CustomerAddress = address
		req.SoldOn = time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC)
		if _, err := svc.InsertTransaction(ctx, req); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	insert("t1", "c1", "123 Main St", 1)
	insert("t2", "c1", "123  Main St", 2)
	insert("t3", "c2", "9 Elm Rd", 2)
	insert("t4", "c1", "", 3)
	insert("t5", "c1", "456 Oak Ave", 5)

	changes, err := svc.AddressChanges(ctx,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("address changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].CustomerID != "c1" || changes[0].Address != "123 Main St" {
		t.Fatalf("unexpected first change %+v", changes[0])
	}
	if changes[1].CustomerID != "c2" {
		t.Fatalf("expected c2 second, got %+v", changes[1])
	}
	if changes[2].Address != "456 Oak Ave" || changes[2].EffectiveDate.Day() != 5 {
		t.Fatalf("unexpected last change %+v", changes[2])
	}
}
