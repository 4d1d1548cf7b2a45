package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"simpletasks/internal/cache"
	"simpletasks/internal/utils"
)

type bucketJSON struct {
	Name    string    `json:"name"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Created time.Time `json:"created"`
	Current bool      `json:"current"`
}

type listBucketsResponse struct {
	Buckets []bucketJSON `json:"buckets"`
	Count   int          `json:"count"`
	Result  string       `json:"result"`
}

type clearBucketsResponse struct {
	Action  string   `json:"action"`
	Deleted []string `json:"deleted"`
	Result  string   `json:"result"`
}

// newCacheCmd creates the 'cache' subcommand for inspecting offline cache buckets
func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline cache",
		Long:  "List or delete the versioned cache buckets kept by the offline worker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cacheCmd.AddCommand(newCacheListCmd(a))
	cacheCmd.AddCommand(newCacheClearCmd(a))

	return cacheCmd
}

// withCache opens the cache storage for the duration of fn
func (a *app) withCache(fn func(storage cache.Storage) error) error {
	storage, err := openCache(a.settings)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()
	return fn(storage)
}

func newCacheListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cache buckets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(storage cache.Storage) error {
				return a.doCacheList(context.Background(), storage)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// doCacheList prints every bucket with its size and age. The bucket named by
// the configured version is marked current.
func (a *app) doCacheList(ctx context.Context, storage cache.Storage) error {
	infos, err := storage.Info(ctx)
	if err != nil {
		return err
	}
	current := a.settings.Offline.Version

	if a.jsonOutput() {
		buckets := make([]bucketJSON, 0, len(infos))
		for _, info := range infos {
			buckets = append(buckets, bucketJSON{
				Name:    info.Name,
				Entries: info.Entries,
				Bytes:   info.Bytes,
				Created: info.Created,
				Current: info.Name == current,
			})
		}
		return outputJSON(listBucketsResponse{Buckets: buckets, Count: len(buckets), Result: ResultInfoOnly}, a.stdout)
	}

	if len(infos) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No cache buckets")
		a.result(ResultInfoOnly)
		return nil
	}
	for _, info := range infos {
		mark := " "
		if info.Name == current {
			mark = "*"
		}
		_, _ = fmt.Fprintf(a.stdout, "%s %s  %s, %s, created %s\n",
			mark, info.Name,
			utils.Pluralize(info.Entries, "entry", "entries"),
			humanize.Bytes(uint64(info.Bytes)),
			humanize.Time(info.Created),
		)
	}
	a.result(ResultInfoOnly)
	return nil
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [bucket...]",
		Short: "Delete cache buckets, all of them when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(storage cache.Storage) error {
				return a.doCacheClear(context.Background(), storage, args)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// doCacheClear deletes the named buckets, or every bucket
func (a *app) doCacheClear(ctx context.Context, storage cache.Storage, names []string) error {
	if len(names) == 0 {
		keys, err := storage.Keys(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			_, _ = fmt.Fprintln(a.stdout, "No cache buckets")
			a.result(ResultInfoOnly)
			return nil
		}
		if !a.confirm(fmt.Sprintf("Delete %s?", utils.Pluralize(len(keys), "cache bucket", "cache buckets"))) {
			_, _ = fmt.Fprintln(a.stdout, "Cancelled")
			return nil
		}
		names = keys
	}

	deleted := []string{}
	for _, name := range names {
		ok, err := storage.Delete(ctx, name)
		if err != nil {
			return fmt.Errorf("delete cache bucket %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", cache.ErrBucketNotFound, name)
		}
		deleted = append(deleted, name)
		utils.GetLogger().Debug("Deleted cache bucket %s", name)
	}

	if a.jsonOutput() {
		return outputJSON(clearBucketsResponse{Action: "clear", Deleted: deleted, Result: ResultActionCompleted}, a.stdout)
	}
	_, _ = fmt.Fprintf(a.stdout, "Deleted %s\n", utils.Pluralize(len(deleted), "cache bucket", "cache buckets"))
	a.result(ResultActionCompleted)
	return nil
}
