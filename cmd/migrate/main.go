package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"eventpass/internal/config"
	"eventpass/internal/models"
)

// Dev tool: drops and recreates the schema from the bun models, then seeds
// a sample tenant so the service can be exercised locally. Production
// schemas go through the SQL migrations instead.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("dropping tables...")
	dropTables(ctx, db)

	log.Println("creating tables...")
	createTables(ctx, db)

	log.Println("seeding sample data...")
	seedData(ctx, db)

	log.Println("done")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.CheckInLog)(nil),
		(*models.Ticket)(nil),
		(*models.OrderItem)(nil),
		(*models.Order)(nil),
		(*models.EventStaff)(nil),
		(*models.TicketType)(nil),
		(*models.Event)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.EventStaff)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.Ticket)(nil),
		(*models.CheckInLog)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	event := models.Event{
		EventID:     "event001",
		TenantID:    "tenant001",
		OrganizerID: "user-organizer",
		Name:        "Harbor Lights Festival",
		Venue:       "Pier 12",
		StartTime:   time.Now().AddDate(0, 1, 0),
		EndTime:     time.Now().AddDate(0, 1, 0).Add(6 * time.Hour),
		CreatedAt:   time.Now(),
	}
	_, _ = db.NewInsert().Model(&event).Exec(ctx)

	types := []models.TicketType{
		{TicketTypeID: "type-general", EventID: "event001", Name: "General", Price: 40, Capacity: 500},
		{TicketTypeID: "type-vip", EventID: "event001", Name: "VIP", Price: 120, Capacity: 50},
	}
	_, _ = db.NewInsert().Model(&types).Exec(ctx)

	staff := models.EventStaff{EventID: "event001", UserID: "user-scanner"}
	_, _ = db.NewInsert().Model(&staff).Exec(ctx)

	order := models.Order{
		OrderID:           "order001",
		TenantID:          "tenant001",
		EventID:           "event001",
		UserID:            "user-buyer",
		Status:            models.OrderStatusPending,
		CheckoutSessionID: "cs_test_seed",
		CreatedAt:         time.Now(),
	}
	_, _ = db.NewInsert().Model(&order).Exec(ctx)

	items := []models.OrderItem{
		{OrderID: "order001", TicketTypeID: "type-general", Quantity: 2, UnitPrice: 40},
		{OrderID: "order001", TicketTypeID: "type-vip", Quantity: 1, UnitPrice: 120},
	}
	_, _ = db.NewInsert().Model(&items).Exec(ctx)
}
