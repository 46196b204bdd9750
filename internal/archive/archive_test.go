package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ucontrol/internal/core"
	"ucontrol/internal/period"
)

func TestRenderStatement(t *testing.T) {
	p, err := period.PeriodForKey(23, "2024-01")
	if err != nil {
		t.Fatal(err)
	}
	incomes := []core.Income{{ID: "i1", AccountID: "a", Date: core.NewDate(2024, 1, 15), Description: "Salario", Amount: core.Money{Cents: 1000000}, Category: "Sueldo"}}
	expenses := []core.Expense{
		{ID: "e2", AccountID: "a", Date: core.NewDate(2024, 1, 20), Description: "Luz, gas", Amount: core.Money{Cents: 45050}, Category: "Casa"},
		{ID: "e1", AccountID: "a", Date: core.NewDate(2023, 12, 24), Description: "Cena", Amount: core.Money{Cents: 1999}, Category: "Comida", Subcategory: "Restaurante"},
	}

	body, err := RenderStatement(p, incomes, expenses)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		t.Fatalf("statement is not valid CSV: %v", err)
	}
	// meta, header, 3 entries, 3 totals
	if len(records) != 8 {
		t.Fatalf("got %d records, want 8", len(records))
	}
	for i, rec := range records {
		if len(rec) != len(statementHeader) {
			t.Errorf("record %d has %d fields, want %d", i, len(rec), len(statementHeader))
		}
	}
	if records[0][4] != "3" {
		t.Errorf("meta row count = %q, want 3", records[0][4])
	}
	if records[0][1] != "2024-01" || records[0][2] != "2023-12-23" || records[0][3] != "2024-01-22" {
		t.Errorf("unexpected meta row: %v", records[0])
	}
	wantIDs := []string{"e1", "i1", "e2"}
	for i, id := range wantIDs {
		if records[2+i][2] != id {
			t.Errorf("row %d id = %s, want %s", i, records[2+i][2], id)
		}
	}
	if records[4][6] != "Luz, gas" || records[4][7] != "-450.50" {
		t.Errorf("unexpected expense row: %v", records[4])
	}
	if got := records[7]; got[1] != "net" || got[7] != "9529.51" {
		t.Errorf("unexpected net row: %v", got)
	}
}

func TestStatementKey(t *testing.T) {
	p, _ := period.PeriodForKey(5, "2024-03")
	if got := StatementKey(p, 5); got != "statements/cutoff-05/2024-03.csv" {
		t.Fatalf("StatementKey = %q", got)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverPut(t *testing.T) {
	fake := &fakeS3{}
	a := newS3Archiver(fake, Config{Bucket: "ledger", Prefix: "ucontrol"}, nil)

	if err := a.Put(context.Background(), "statements/x.csv", []byte("a,b\n"), ContentTypeCSV); err != nil {
		t.Fatalf("put: %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "ledger" || aws.ToString(fake.input.Key) != "ucontrol/statements/x.csv" {
		t.Fatalf("unexpected target: %s/%s", aws.ToString(fake.input.Bucket), aws.ToString(fake.input.Key))
	}
	if string(fake.body) != "a,b\n" || aws.ToString(fake.input.ContentType) != ContentTypeCSV {
		t.Fatalf("unexpected object: %q %s", fake.body, aws.ToString(fake.input.ContentType))
	}

	fake.err = errors.New("access denied")
	if err := a.Put(context.Background(), "k", nil, ContentTypeCSV); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	if _, err := NewS3Archiver(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error without bucket")
	}
}
