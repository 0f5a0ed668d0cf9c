package cmd

import (
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ceejayvjose/ict-repair-system/internal/database"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/ticketno"
)

var auditNumbersCmd = &cobra.Command{
	Use:   "audit-numbers",
	Short: "Scan all tickets for malformed or duplicate ticket numbers",
	Long: "Historical data written before the unique constraint existed can " +
		"contain duplicates or numbers that do not match YYYYMMDDNNNNN. " +
		"This reports them; it never rewrites anything.",
	RunE: runAuditNumbers,
}

func init() {
	rootCmd.AddCommand(auditNumbersCmd)
}

func runAuditNumbers(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidatedConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	var tickets []model.Ticket
	if err := db.Find(&tickets).Error; err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Printf("audit-numbers: scanning %d tickets", len(tickets))

	seen := make(map[string][]uint64)
	malformed := 0
	for _, t := range tickets {
		if !ticketno.Valid(t.TicketNumber) {
			malformed++
			log.Printf("audit-numbers: ticket %d has malformed number %q", t.ID, t.TicketNumber)
			continue
		}
		seen[t.TicketNumber] = append(seen[t.TicketNumber], t.ID)
	}

	duplicates := 0
	numbers := make([]string, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	for _, n := range numbers {
		if ids := seen[n]; len(ids) > 1 {
			duplicates++
			log.Printf("audit-numbers: number %s is used by tickets %v", n, ids)
		}
	}

	if malformed == 0 && duplicates == 0 {
		log.Println("audit-numbers: ok, no malformed or duplicate numbers")
		return nil
	}
	log.Printf("audit-numbers: found %d malformed, %d duplicated", malformed, duplicates)
	return nil
}
