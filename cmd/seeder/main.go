// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unclebandit/whatsapp-campaigns/internal/config"
	"github.com/unclebandit/whatsapp-campaigns/internal/db"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
)

var defaultSeedFiles = []string{
	"seed/integrations.sql",
	"seed/leads.sql",
	"seed/campaigns.sql",
}

func main() {
	root := &cobra.Command{
		Use:           "seeder",
		Short:         "Populate the campaigns database with sample data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(sqlCommand(), fakeCommand())

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func connect(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.SetupLogging(cfg)
	conn, err := db.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func sqlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sql [files...]",
		Short: "Execute seed SQL files (defaults to seed/*.sql)",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				files = defaultSeedFiles
			}
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, file := range files {
				content, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				if _, err := conn.ExecContext(cmd.Context(), string(content)); err != nil {
					return fmt.Errorf("failed to execute %s: %w", file, err)
				}
				logrus.Infof("Seeded: %s", file)
			}
			logrus.Info("Database seeding completed successfully!")
			return nil
		},
	}
}

func fakeCommand() *cobra.Command {
	var (
		count      int
		campaignID int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "fake",
		Short: "Insert generated leads and optionally queue them for a campaign",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			leads := fakeLeads(count, seed)
			ids, err := insertLeads(ctx, conn, leads)
			if err != nil {
				return err
			}
			logrus.Infof("Inserted %d leads", len(ids))

			if campaignID == 0 {
				return nil
			}
			recipients := make([]model.Recipient, len(leads))
			for i, l := range leads {
				recipients[i] = l.Recipient()
			}
			queued, err := (&repository.QueueRepository{DB: conn}).Enqueue(ctx, campaignID, recipients)
			if err != nil {
				return err
			}
			logrus.WithField("campaign_id", campaignID).Infof("Queued %d recipients", queued)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "leads", 50, "number of leads to generate")
	cmd.Flags().IntVar(&campaignID, "campaign", 0, "campaign to queue the generated leads for")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	return cmd
}

// fakeLeads generates n leads with distinct Brazilian mobile numbers.
func fakeLeads(n int, seed int64) []model.Lead {
	faker := gofakeit.New(seed)
	leads := make([]model.Lead, n)
	for i := range leads {
		leads[i] = model.Lead{
			Name:  faker.Name(),
			Phone: fmt.Sprintf("55%d9%08d", faker.Number(11, 99), i),
			Email: faker.Email(),
			CustomFields: map[string]interface{}{
				"cidade":  faker.City(),
				"empresa": faker.Company(),
			},
		}
	}
	return leads
}

func insertLeads(ctx context.Context, conn *sql.DB, leads []model.Lead) ([]int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (name, phone, email, custom_fields) VALUES ($1, $2, $3, $4) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int, 0, len(leads))
	for _, l := range leads {
		fields, err := json.Marshal(l.CustomFields)
		if err != nil {
			return nil, err
		}
		var id int
		if err := stmt.QueryRowContext(ctx, l.Name, l.Phone, l.Email, fields).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert lead %s: %w", l.Phone, err)
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}
