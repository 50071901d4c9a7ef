// Command seed bulk-creates sample persons with child records. It is a
// plain caller of the store's create operations, useful for populating
// a development table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/rolodex/store"
)

// tableEnv names the required environment variable carrying the table
// name. Absence is a startup-time fatal configuration error.
const tableEnv = "ROLODEX_TABLE"

var (
	firstNames = []string{"Ada", "Alan", "Grace", "Edsger", "Barbara", "Donald", "Margaret", "John"}
	lastNames  = []string{"Lovelace", "Turing", "Hopper", "Dijkstra", "Liskov", "Knuth", "Hamilton", "Backus"}
	cities     = []string{"London", "Manchester", "New York", "Rotterdam", "Boston", "Milwaukee"}
	countries  = []string{"UK", "UK", "USA", "Netherlands", "USA", "USA"}
	companies  = []string{"Analytical Engines", "Bletchley", "Eckert-Mauchly", "Burroughs", "MIT", "Stanford"}
	banks      = []string{"First National", "Midland", "Chase", "ABN"}
)

func main() {
	count := flag.Int("count", 25, "number of persons to create")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	tableName := os.Getenv(tableEnv)
	if tableName == "" {
		logger.Error("missing required configuration", "env", tableEnv)
		os.Exit(1)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	s, err := store.New(client, store.DefaultConfig(tableName), store.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	if err := seed(ctx, s, *count); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "persons", *count)
}

func seed(ctx context.Context, s *store.Store, count int) error {
	for i := 0; i < count; i++ {
		first := firstNames[i%len(firstNames)]
		last := lastNames[i%len(lastNames)]

		p := store.Person{FirstName: first, LastName: last}
		if err := s.CreatePerson(ctx, &p); err != nil {
			return fmt.Errorf("create person %d: %w", i, err)
		}

		addr := store.Address{
			PersonID:   p.ID,
			Street:     fmt.Sprintf("%d Main Street", i+1),
			City:       cities[i%len(cities)],
			PostalCode: fmt.Sprintf("%05d", 10000+i),
			Country:    countries[i%len(countries)],
			IsPrimary:  true,
		}
		if err := s.CreateAddress(ctx, &addr); err != nil {
			return fmt.Errorf("create address for %s: %w", p.ID, err)
		}

		email := store.ContactInfo{
			PersonID:  p.ID,
			Type:      store.ContactEmail,
			Value:     fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last)),
			IsPrimary: true,
		}
		if err := s.CreateContactInfo(ctx, &email); err != nil {
			return fmt.Errorf("create contact for %s: %w", p.ID, err)
		}

		job := store.Employment{
			PersonID:  p.ID,
			Company:   companies[i%len(companies)],
			Position:  "Engineer",
			StartDate: "2020-01-01",
			IsCurrent: true,
		}
		if err := s.CreateEmployment(ctx, &job); err != nil {
			return fmt.Errorf("create employment for %s: %w", p.ID, err)
		}

		bank := store.BankAccount{
			PersonID:  p.ID,
			BankName:  banks[i%len(banks)],
			IBAN:      fmt.Sprintf("GB00ROLO%012d", i),
			IsPrimary: true,
		}
		if err := s.CreateBankAccount(ctx, &bank); err != nil {
			return fmt.Errorf("create bank account for %s: %w", p.ID, err)
		}
	}
	return nil
}
