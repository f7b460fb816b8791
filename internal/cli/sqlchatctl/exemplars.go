package sqlchatctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/exemplar"
	"github.com/sqlchat/sqlchat/internal/sqlguard"
	"github.com/sqlchat/sqlchat/internal/storage"
	"github.com/sqlchat/sqlchat/internal/storage/s3"
)

func newExemplarsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exemplars",
		Short: "Validate and publish few-shot exemplar artifacts",
		Args:  exactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			return usageError{fmt.Errorf("exemplars requires a subcommand: check or push")}
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate an artifact locally",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := readExemplars(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d exemplars, version %s\n", args[0], set.Len(), set.Version)
			return nil
		},
	})

	var name string
	push := &cobra.Command{
		Use:   "push <file>",
		Short: "Validate an artifact and upload it to the object store",
		Long: `push validates every exemplar SQL statement, then uploads the file under
exemplars/<name> in the configured bucket. Point SQLCHAT_EXEMPLARS_SOURCE at the
printed URI to serve it.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, raw, err := readExemplars(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			key, err := storage.ExemplarKey(name)
			if err != nil {
				return usageError{err}
			}
			if opts.ObjectStore == nil {
				return errors.New("object store is not configured")
			}
			storeCfg, err := opts.ObjectStore()
			if err != nil {
				return err
			}
			store, err := opts.OpenStore(cmd.Context(), storeCfg)
			if err != nil {
				return err
			}
			info, err := store.Put(cmd.Context(), key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: contentType(name)})
			if err != nil {
				return fmt.Errorf("upload exemplars: %w", err)
			}
			location := storage.Location{Bucket: storeCfg.Bucket, Key: info.Key}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d exemplars (version %s) to %s\n", set.Len(), set.Version, location)
			return nil
		},
	}
	push.Flags().StringVar(&name, "name", "", "object name under exemplars/ (default: the file name)")
	cmd.AddCommand(push)
	return cmd
}

func readExemplars(path string) (exemplar.Set, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return exemplar.Set{}, nil, fmt.Errorf("read exemplars: %w", err)
	}
	set, err := exemplar.Decode(path, raw)
	if err != nil {
		return exemplar.Set{}, nil, err
	}
	if err := set.Validate(sqlguard.New()); err != nil {
		return exemplar.Set{}, nil, err
	}
	return set, raw, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/json"
	}
}

func openS3Store(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
	return s3.New(ctx, s3.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UseSSL:          cfg.UseSSL,
		Prefix:          cfg.Prefix,
		CreateBucket:    true,
	})
}
