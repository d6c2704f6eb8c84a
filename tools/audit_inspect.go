package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"secure-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "audit", "Path to the audit badger DB")
	limit := flag.Int("limit", 50, "Records per page")
	pages := flag.Int("pages", 1, "Number of pages to print, newest first")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.ERROR).WithReadOnly(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewAuditRepository(db, logs.GetLoggerFromString("ERROR"), limit)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Type", "Username", "Identity", "Remote", "Reason", "Conn"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var cursor *string
	count := 0
	for range *pages {
		events, next, err := repository.List(cursor)
		if err != nil {
			log.Fatal("Error while listing audit records: ", err)
		}
		for _, e := range events {
			table.Append([]string{
				e.At.Format("2006-01-02 15:04:05.000"),
				string(e.Type),
				lo.CoalesceOrEmpty(e.Username.String(), "-"),
				lo.CoalesceOrEmpty(e.Identity, "-"),
				e.RemoteAddr,
				lo.CoalesceOrEmpty(e.Reason, "-"),
				lo.Substring(e.ConnID, 0, 8),
			})
		}
		count += len(events)
		if len(events) < *limit {
			break
		}
		cursor = next
	}

	table.Render()
	fmt.Printf("\n%d audit records\n", count)
}
