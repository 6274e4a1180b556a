package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prekclip/server/internal/auth"
	"github.com/prekclip/server/internal/store"
)

func newImportCmd() *cobra.Command {
	var from string
	var force bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a legacy database.json into the configured storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			backend, err := store.Open(ctx, cfg)
			if err != nil {
				return err
			}
			st := store.New(backend, logger)
			defer st.Close()

			doc, err := importLegacy(ctx, st, from, force)
			if err != nil {
				return err
			}

			logger.Info("legacy data imported",
				zap.String("from", from),
				zap.String("driver", cfg.StorageDriver),
				zap.Int("users", len(doc.Users)),
				zap.Int("posts", len(doc.Posts)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "database.json", "legacy document to import")
	cmd.Flags().BoolVar(&force, "force", false, "replace existing data")
	return cmd
}

// importLegacy converts the file at path and writes it to st.
// It refuses to overwrite a store that already has users unless force is set.
func importLegacy(ctx context.Context, st *store.Store, path string, force bool) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := store.ImportLegacy(data, auth.HashPassword)
	if err != nil {
		return nil, err
	}

	if !force {
		existing := 0
		if err := st.View(ctx, func(d *store.Document) error {
			existing = len(d.Users) + len(d.Posts)
			return nil
		}); err != nil {
			return nil, err
		}
		if existing > 0 {
			return nil, fmt.Errorf("storage already holds data; rerun with --force to replace it")
		}
	}

	if err := st.Replace(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
