package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/wyhuang/scholarship-engine/internal/db"
)

// Prints the applications currently waiting on a reviewer, oldest first.
func main() {
	status := flag.String("status", "in_review", "status filter (in_review, submitted, under_review, ...)")
	scholarship := flag.String("scholarship", "", "limit to one scholarship code")
	limit := flag.Int("limit", 50, "maximum rows")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	result, err := store.ListApplications(ctx, db.ListParams{
		Status:          *status,
		ScholarshipCode: *scholarship,
		Limit:           *limit,
	})
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Application", "Student", "Scholarship", "Sub", "Status", "Waiting"})

	now := time.Now()
	for _, app := range result.Applications {
		t.AppendRow(table.Row{
			app.ID.String()[:8], app.StudentID, app.ScholarshipCode, app.SubCode,
			string(app.Status), now.Sub(app.UpdatedAt).Round(time.Hour).String(),
		})
	}
	t.Render()
	fmt.Printf("%d of %d\n", len(result.Applications), result.Total)
}
