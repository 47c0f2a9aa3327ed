package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
)

var (
	seedFirstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Ken", "Radia", "Linus", "Margaret", "Dennis"}
	seedLastNames  = []string{"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Thompson", "Perlman", "Torvalds", "Hamilton", "Ritchie"}
	seedCities     = []string{"Leeds", "Istanbul", "Berlin", "Lisbon", "Oslo", "Porto", "Lyon", "Ghent"}
	seedCountries  = []string{"GB", "TR", "DE", "PT", "NO", "FR", "BE"}
	seedAdjectives = []string{"Classic", "Wireless", "Organic", "Compact", "Vintage", "Smart", "Rugged", "Slim"}
	seedNouns      = []string{"Headphones", "Backpack", "Kettle", "Lamp", "Keyboard", "Jacket", "Blender", "Notebook"}
	seedDepts      = []string{"Electronics", "Home", "Outdoors", "Fashion", "Kitchen", "Office"}
)

type seedCounts struct {
	customers  int
	products   int
	categories int
}

func newSeedCommand(e *env) *cobra.Command {
	var (
		counts seedCounts
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the record store with generated test data",
		Long: `Writes generated customers, addresses, wish lists, products and categories
straight to the record store. No change events are emitted, so run
"indexctl reindex" afterwards to make them searchable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if counts.customers < 0 || counts.products < 0 || counts.categories < 0 {
				return errors.New("counts must not be negative")
			}
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			log := e.logger(cfg)

			ctx := cmd.Context()
			core, err := e.newCore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(ctx) }()

			start := time.Now()
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			if err := seedStore(ctx, core.Store, counts, rng); err != nil {
				return err
			}
			log.Info("seed completed",
				slog.Int("customers", counts.customers),
				slog.Int("products", counts.products),
				slog.Int("categories", counts.categories),
				slog.Duration("took", time.Since(start)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d customers, %d products, %d categories\n",
				counts.customers, counts.products, counts.categories)
			return nil
		},
	}

	cmd.Flags().IntVar(&counts.customers, "customers", 100, "customers to create, each with one address and one wish list")
	cmd.Flags().IntVar(&counts.products, "products", 1000, "products to create")
	cmd.Flags().IntVar(&counts.categories, "categories", 20, "categories to create")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed for generated values")
	return cmd
}

func seedStore(ctx context.Context, store *repository.Store, counts seedCounts, rng *rand.Rand) error {
	now := time.Now().UTC()
	pick := func(s []string) string { return s[rng.IntN(len(s))] }

	wishLists := make([]uuid.UUID, 0, counts.customers)
	for i := range counts.customers {
		first, last := pick(seedFirstNames), pick(seedLastNames)
		c := domain.Customer{
			ID:        uuid.New(),
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s.%d@example.com", first, last, i),
			Telephone: fmt.Sprintf("+44%09d", rng.IntN(1_000_000_000)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.Customers.Create(ctx, &c); err != nil {
			return fmt.Errorf("seed customer: %w", err)
		}

		a := domain.Address{
			ID:         uuid.New(),
			Address1:   fmt.Sprintf("%d High Street", rng.IntN(200)+1),
			City:       pick(seedCities),
			Postcode:   fmt.Sprintf("AB%d %dCD", rng.IntN(90)+10, rng.IntN(9)+1),
			Country:    pick(seedCountries),
			CustomerID: &c.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := store.Addresses.Create(ctx, &a); err != nil {
			return fmt.Errorf("seed address: %w", err)
		}

		w := domain.WishList{
			ID:         uuid.New(),
			Title:      first + "'s wish list",
			Restricted: rng.IntN(4) == 0,
			CustomerID: &c.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := store.WishLists.Create(ctx, &w); err != nil {
			return fmt.Errorf("seed wish list: %w", err)
		}
		wishLists = append(wishLists, w.ID)
	}

	products := make([]uuid.UUID, 0, counts.products)
	for range counts.products {
		adj, noun := pick(seedAdjectives), pick(seedNouns)
		rating := rng.IntN(6)
		added := now.Add(-time.Duration(rng.IntN(365*24)) * time.Hour)
		p := domain.Product{
			ID:          uuid.New(),
			Title:       adj + " " + noun,
			Keywords:    fmt.Sprintf("%s %s", adj, noun),
			Description: fmt.Sprintf("A %s %s for everyday use.", adj, noun),
			Rating:      &rating,
			DateAdded:   &added,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// One product in three stays off every wish list.
		if len(wishLists) > 0 && rng.IntN(3) > 0 {
			p.WishListID = &wishLists[rng.IntN(len(wishLists))]
		}
		if err := store.Products.Create(ctx, &p); err != nil {
			return fmt.Errorf("seed product: %w", err)
		}
		products = append(products, p.ID)
	}

	var roots []uuid.UUID
	for i := range counts.categories {
		order := i
		c := domain.Category{
			ID:          uuid.New(),
			Description: pick(seedDepts),
			SortOrder:   &order,
			Status:      domain.CategoryAvailable,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if len(roots) < 5 {
			roots = append(roots, c.ID)
		} else {
			c.ParentID = &roots[rng.IntN(len(roots))]
		}
		if rng.IntN(10) == 0 {
			c.Status = domain.CategoryRestricted
		}
		if len(products) > 0 {
			seen := make(map[uuid.UUID]struct{})
			for range rng.IntN(10) + 1 {
				id := products[rng.IntN(len(products))]
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				c.ProductIDs = append(c.ProductIDs, id)
			}
		}
		if err := store.Categories.Create(ctx, &c); err != nil {
			return fmt.Errorf("seed category: %w", err)
		}
	}
	return nil
}
