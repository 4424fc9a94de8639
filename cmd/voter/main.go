// Command voter is the blindvote voter client: it manages the voter signing
// key, obtains blind signed credentials, casts ballots and checks them on the
// bulletin board.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vocdoni/blindvote/api/client"
	"github.com/vocdoni/blindvote/config"
	"github.com/vocdoni/blindvote/keystore"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
	"github.com/vocdoni/blindvote/voter"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	root := &cobra.Command{
		Use:           "voter",
		Short:         "Anonymous voting client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())
	root.AddCommand(
		keygenCommand(),
		electionCommand(),
		prepareCommand(),
		castCommand(),
		abandonCommand(),
		verifyCommand(),
		receiptsCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

// voterEnv holds what the commands need once the flags are parsed.
type voterEnv struct {
	conf    *config.Config
	storage *storage.Storage
	client  *client.HTTPclient
}

func (e *voterEnv) Close() {
	if e.storage != nil {
		e.storage.Close()
	}
}

// loadConfig parses the flags and initializes the logger.
func loadConfig(c *cobra.Command, args []string) (*config.Config, error) {
	conf, err := config.ParseFlags(c.Flags(), args)
	if err != nil {
		return nil, err
	}
	log.Init(conf.LogLevel, conf.LogOutput, nil)
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return conf, nil
}

// setup opens the voter database and the authority client.
func setup(c *cobra.Command, args []string) (*voterEnv, error) {
	conf, err := loadConfig(c, args)
	if err != nil {
		return nil, err
	}
	database, err := metadb.New(conf.DBType, conf.DBPath("voter"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	cli, err := client.NewUnchecked(conf.APIURL)
	if err != nil {
		database.Close()
		return nil, err
	}
	cli.SetRetries(conf.Retries)
	cli.SetTimeout(conf.Timeout)
	return &voterEnv{conf: conf, storage: storage.New(database), client: cli}, nil
}

// session unlocks the voter key and builds a voting session.
func (e *voterEnv) session() (*voter.Session, error) {
	if e.conf.Passphrase == "" {
		return nil, fmt.Errorf("voter key passphrase required, set %s", config.EnvName(config.PassphraseKey))
	}
	signer, err := keystore.New(e.conf.KeyFilePath()).SigningKey(e.conf.Passphrase)
	if err != nil {
		return nil, err
	}
	return voter.New((&voter.Config{
		Signer:  signer,
		Storage: e.storage,
	}).WithAuthority(e.client))
}

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
