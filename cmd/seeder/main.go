package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/punchamoorthee/ledgerops/internal/config"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Seed is what the benchmark reads back.
type Seed struct {
	Merchants []string `json:"merchants"`
	Users     []string `json:"users"`
}

func main() {
	merchants := flag.Int("merchants", 10, "Number of merchants to create")
	users := flag.Int("users", 1000, "Number of users to create")
	fund := flag.Int64("fund", 10_000_000, "Wallet funding per user, in kobo")
	out := flag.String("out", "seed.json", "File the created ids are written to")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Driver != config.DriverPostgres {
		log.Fatalf("seeder needs STORE_DRIVER=%s", config.DriverPostgres)
	}

	ctx := context.Background()
	pg, err := store.Open(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("Schema migration failed: %v", err)
	}

	svc := service.New(pg)
	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}

	log.Println("--- Seeding Database ---")
	var seed Seed
	for i := range *merchants {
		m, err := svc.CreateMerchant(ctx, models.CreateMerchantRequest{Name: fmt.Sprintf("Merchant %04d", i+1)})
		if err != nil {
			log.Fatalf("Create merchant failed: %v", err)
		}
		seed.Merchants = append(seed.Merchants, m.MerchantID)
	}

	for i := range *users {
		u, err := svc.CreateUser(ctx, models.CreateUserRequest{Name: fmt.Sprintf("User %05d", i+1)})
		if err != nil {
			log.Fatalf("Create user failed: %v", err)
		}
		if *fund > 0 {
			if _, err := svc.FundWallet(ctx, models.FundWalletRequest{UserID: u.UserID, Amount: *fund}); err != nil {
				log.Fatalf("Fund wallet failed: %v", err)
			}
		}
		seed.Users = append(seed.Users, u.UserID)
	}

	file, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Create %s: %v", *out, err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(seed); err != nil {
		log.Fatalf("Write %s: %v", *out, err)
	}

	log.Printf("Seeded %d merchants and %d users into %s.", len(seed.Merchants), len(seed.Users), *out)
}
