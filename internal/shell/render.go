package shell

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"MiniCatalog/internal/audit"
	"MiniCatalog/internal/catalog"
)

const eventTimeLayout = "2006-01-02 15:04:05"

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func writeProducts(out io.Writer, products []catalog.Product) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tBRAND\tPRICE\tDESCRIPTION")
	for _, p := range products {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Category, p.Brand, p.Price.StringFixed(2), p.Description)
	}
	return tw.Flush()
}

func writeEvents(out io.Writer, events []audit.Event) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "TIME\tUSER\tACTION\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.In(time.Local).Format(eventTimeLayout), e.Username, e.Action, e.Details)
	}
	return tw.Flush()
}
