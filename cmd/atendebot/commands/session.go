package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/credstore"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/database"
)

// newSessionCmd creates the `atendebot session` command group for managing
// the persisted WhatsApp credentials.
func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the persisted WhatsApp session",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show how many credential entries are stored",
			RunE:  runSessionStatus,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete all stored credentials, forcing a fresh QR pairing",
			RunE:  runSessionClear,
		},
	)
	return cmd
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	store, db, err := openCredStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := store.Count(context.Background())
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("No stored session. A QR pairing will run on next serve.")
		return nil
	}
	fmt.Printf("Stored credential entries: %d\n", count)
	return nil
}

func runSessionClear(cmd *cobra.Command, _ []string) error {
	store, db, err := openCredStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := store.Purge(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d credential entries. Scan the QR code on next serve.\n", removed)
	return nil
}

func openCredStore(cmd *cobra.Command) (*credstore.Store, *sql.DB, error) {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	store, err := credstore.Open(db, nil)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("opening credential store: %w", err)
	}
	return store, db, nil
}
