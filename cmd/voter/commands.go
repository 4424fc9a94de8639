package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vocdoni/blindvote/config"
	"github.com/vocdoni/blindvote/keystore"
	"github.com/vocdoni/blindvote/service"
)

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generates the encrypted voter signing key",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			conf, err := loadConfig(c, args)
			if err != nil {
				return err
			}
			if conf.Passphrase == "" {
				return fmt.Errorf("passphrase required, set %s", config.EnvName(config.PassphraseKey))
			}
			ks := keystore.New(conf.KeyFilePath())
			k, err := ks.Generate(conf.Passphrase)
			if err != nil {
				return err
			}
			return printJSON(c, map[string]string{
				"address": k.AddressString(),
				"keyfile": ks.Path(),
			})
		},
	}
}

func electionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "election <electionId>",
		Short: "Shows an election",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			detail, err := env.client.ElectionDetail(c.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(c, detail)
		},
	}
}

func prepareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <electionId>",
		Short: "Obtains a blind signed voting credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			s, err := env.session()
			if err != nil {
				return err
			}
			cred, err := s.PrepareCredential(c.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(c, map[string]string{
				"election_id": cred.ElectionID,
				"rsa_key_id":  cred.RSAKeyID,
				"tracker":     cred.Tracker,
			})
		},
	}
}

func castCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cast <electionId> <candidateId>",
		Short: "Casts a ballot with the prepared credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			s, err := env.session()
			if err != nil {
				return err
			}
			r, err := s.Cast(c.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(c, r)
		},
	}
}

func abandonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <electionId>",
		Short: "Deletes the prepared credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			s, err := env.session()
			if err != nil {
				return err
			}
			return s.Abandon(args[0])
		},
	}
}

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <electionId>",
		Short: "Looks the cast ballot up on the bulletin board",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			s, err := env.session()
			if err != nil {
				return err
			}
			watch, err := c.Flags().GetDuration("watch")
			if err != nil {
				return err
			}
			if watch <= 0 {
				inc, err := s.VerifyInclusion(c.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(c, inc)
			}
			monitor := service.NewInclusionMonitor(s, env.storage, watch)
			if err := monitor.Start(c.Context()); err != nil {
				return err
			}
			defer monitor.Stop()
			for {
				select {
				case inc := <-monitor.Included():
					if inc.Receipt.ElectionID == args[0] {
						return printJSON(c, inc)
					}
				case inc := <-monitor.Mismatches():
					if inc.Receipt.ElectionID == args[0] {
						_ = printJSON(c, inc)
						return fmt.Errorf("published ballot does not match the receipt")
					}
				case <-c.Context().Done():
					return c.Context().Err()
				}
			}
		},
	}
	cmd.Flags().Duration("watch", 0, "poll the bulletin board at this interval until the ballot is published")
	return cmd
}

func receiptsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipts",
		Short: "Lists the stored receipts",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			env, err := setup(c, args)
			if err != nil {
				return err
			}
			defer env.Close()
			list, err := env.storage.ListReceipts()
			if err != nil {
				return err
			}
			return printJSON(c, list)
		},
	}
}
