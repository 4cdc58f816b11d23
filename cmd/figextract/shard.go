package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/figcap/internal/ledger"
	"github.com/dgallion1/figcap/internal/shard"
	"github.com/dgallion1/figcap/internal/sink"
	"github.com/dgallion1/figcap/internal/source"
)

type shardSummary struct {
	Shard   string      `json:"shard"`
	Skipped bool        `json:"skipped,omitempty"`
	Stats   shard.Stats `json:"stats"`
	Error   string      `json:"error,omitempty"`
}

func shardCmd(g *globals) *cobra.Command {
	var (
		out        string
		ledgerPath string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "shard <shard.tar>...",
		Short: "Extract every paper of one or more shard tars into a webdataset tar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, kinds, cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			var led *ledger.Ledger
			if ledgerPath != "" {
				if led, err = ledger.Open(ledgerPath); err != nil {
					return err
				}
				defer led.Close()
			}
			src := source.NewClient(cfg.FetchTimeout, cfg.MaxShardBytes)
			defer src.Close()

			tw, err := sink.CreateTarSink(out)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			enc := json.NewEncoder(cmd.OutOrStdout())
			var failed int
			for _, name := range args {
				sum := shardSummary{Shard: name}
				if led != nil && !force {
					if done, err := led.Done(ctx, name); err == nil && done {
						sum.Skipped = true
						enc.Encode(sum)
						continue
					}
				}

				r, hash, err := openShard(ctx, src, name)
				if err == nil {
					sum.Stats, err = driver.Run(ctx, r, name, kinds, tw)
					r.Close()
				}
				if err != nil {
					failed++
					sum.Error = err.Error()
					log.Error("shard failed", "shard", name, "error", err)
				}
				if led != nil {
					led.Record(context.WithoutCancel(ctx), ledger.ShardResult{
						Shard:        name,
						Output:       out,
						ContentHash:  hash,
						Papers:       sum.Stats.Papers,
						PapersFailed: sum.Stats.PapersFailed,
						Records:      sum.Stats.Records,
						Detail:       sum.Stats.Detail,
						Error:        sum.Error,
						ProcessedAt:  time.Now().UTC(),
					})
				}
				enc.Encode(sum)
			}
			if err := tw.Close(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d shards failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "figcap.tar", "output webdataset tar")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "sqlite ledger used to skip finished shards")
	cmd.Flags().BoolVar(&force, "force", false, "reprocess shards the ledger marks as done")
	return cmd
}

// openShard streams local shards from disk; remote ones are downloaded
// first. The content hash is only known for downloads.
func openShard(ctx context.Context, src *source.Client, location string) (io.ReadCloser, string, error) {
	if !isRemote(location) {
		f, err := os.Open(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, "", err
		}
		return f, "", nil
	}
	data, err := src.Fetch(ctx, location)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(data)), contentHash(data), nil
}
