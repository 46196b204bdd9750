// Package archive renders closed-period statements and stores them in S3.
package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"ucontrol/internal/core"
	"ucontrol/internal/period"
)

const ContentTypeCSV = "text/csv; charset=utf-8"

var statementHeader = []string{"date", "kind", "id", "account_id", "category", "subcategory", "description", "amount"}

type statementRow struct {
	date core.Date
	rec  []string
}

// StatementKey is the object key of the statement for a period closed under
// cutoffDay.
func StatementKey(p period.FinancialPeriod, cutoffDay int) string {
	return fmt.Sprintf("statements/cutoff-%02d/%s.csv", cutoffDay, p.PeriodKey)
}

// RenderStatement writes every entry of the period as CSV, oldest first, and
// closes with total rows for incomes, expenses and net. Expense amounts are
// negative.
func RenderStatement(p period.FinancialPeriod, incomes []core.Income, expenses []core.Expense) ([]byte, error) {
	rows := make([]statementRow, 0, len(incomes)+len(expenses))
	var totalIn, totalOut core.Money
	for _, in := range incomes {
		totalIn = totalIn.Add(in.Amount)
		rows = append(rows, statementRow{in.Date, []string{
			in.Date.String(), string(core.KindIncome), in.ID, in.AccountID, in.Category, "", in.Description, in.Amount.String(),
		}})
	}
	for _, e := range expenses {
		totalOut = totalOut.Add(e.Amount)
		rows = append(rows, statementRow{e.Date, []string{
			e.Date.String(), string(core.KindExpense), e.ID, e.AccountID, e.Category, e.Subcategory, e.Description,
			core.Money{Cents: -e.Amount.Cents}.String(),
		}})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Every record carries len(statementHeader) fields so strict readers accept the file.
	meta := make([]string, len(statementHeader))
	copy(meta, []string{"# period", p.PeriodKey, p.PeriodStart.String(), p.PeriodEnd.String(), strconv.Itoa(len(rows))})
	if err := w.Write(meta); err != nil {
		return nil, err
	}
	if err := w.Write(statementHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.rec); err != nil {
			return nil, err
		}
	}
	net := totalIn.Sub(totalOut)
	totals := [][]string{
		{"", "total_income", "", "", "", "", "", totalIn.String()},
		{"", "total_expense", "", "", "", "", "", core.Money{Cents: -totalOut.Cents}.String()},
		{"", "net", "", "", "", "", "", net.String()},
	}
	if err := w.WriteAll(totals); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
