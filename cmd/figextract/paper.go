package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/figcap/internal/sink"
	"github.com/dgallion1/figcap/internal/source"
)

func paperCmd(g *globals) *cobra.Command {
	var (
		out string
		url string
	)
	cmd := &cobra.Command{
		Use:   "paper <archive>",
		Short: "Extract a single paper archive (.gz, .tar or .zip)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, kinds, cfg, _, err := g.setup()
			if err != nil {
				return err
			}
			src := source.NewClient(cfg.FetchTimeout, cfg.MaxShardBytes)
			defer src.Close()

			data, err := src.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if url == "" {
				url = filepath.Base(args[0])
			}

			tw, err := sink.CreateTarSink(out)
			if err != nil {
				return err
			}
			ps, err := driver.Paper(cmd.Context(), data, url, kinds, tw)
			if cerr := tw.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"paper": url, "output": out, "stats": ps})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "figcap.tar", "output webdataset tar")
	cmd.Flags().StringVar(&url, "url", "", "URL recorded with each record (default: archive file name)")
	return cmd
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
