// Command authority runs the election authority API from a key file. It
// signs blinded tokens, accepts ballots and publishes the bulletin board.
// It never decrypts the tally.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/config"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/service"
	"github.com/vocdoni/blindvote/storage"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	root := &cobra.Command{
		Use:           "authority",
		Short:         "Election authority server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())
	root.AddCommand(serveCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the authority API",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
}

func serve(c *cobra.Command, args []string) error {
	conf, err := config.ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	log.Init(conf.LogLevel, conf.LogOutput, nil)
	if conf.AuthorityKeys == "" {
		return fmt.Errorf("missing --%s", config.AuthorityKey)
	}
	kf, err := authority.LoadKeyFile(conf.AuthorityKeys)
	if err != nil {
		return fmt.Errorf("load key file: %w", err)
	}
	rsaKey, paillierKey, err := kf.Keys()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	database, err := metadb.New(conf.DBType, conf.DBPath("authority"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	a, err := authority.New(&authority.Config{
		Storage:     stg,
		RSAKey:      rsaKey,
		PaillierKey: paillierKey,
	})
	if err != nil {
		return err
	}
	for _, e := range kf.Elections {
		_, err := a.Election(e.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, authority.ErrElectionNotFound) {
			return err
		}
		if err := a.CreateElection(e); err != nil {
			return fmt.Errorf("election %s: %w", e.ID, err)
		}
		log.Infow("election created", "election", e.ID, "candidates", len(e.Candidates))
	}
	log.Infow("authority keys loaded",
		"rsa", rsaKey.KeyID, "bits", rsaKey.Bits(), "paillier", paillierKey.KeyID)

	srv := service.NewAPI(a, conf.Host, conf.Port, conf.Dev)
	if err := srv.Start(c.Context()); err != nil {
		return err
	}
	defer srv.Stop()
	log.Infow("authority API ready", "url", srv.URL(), "dev", conf.Dev)

	<-c.Context().Done()
	log.Info("shutting down")
	return nil
}
