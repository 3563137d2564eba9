package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// StorageCommand returns the storage subcommand group. Its commands open the
// store directly, so Badger commands need the server to be stopped.
func StorageCommand() *cli.Command {
	fileFlag := func(usage string) cli.Flag {
		return &cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    usage,
			Required: true,
		}
	}

	passphraseFlag := &cli.StringFlag{
		Name:  "passphrase-env",
		Usage: "Name of the environment variable holding the backup passphrase; the backup is encrypted when set",
	}

	return &cli.Command{
		Name:  "storage",
		Usage: "Offline storage maintenance",
		Subcommands: []*cli.Command{
			{
				Name:   "backup",
				Usage:  "Write a full Badger backup",
				Flags:  []cli.Flag{configFlag(), fileFlag("Backup file, - for stdout"), passphraseFlag},
				Action: storageBackup,
			},
			{
				Name:   "restore",
				Usage:  "Load a Badger backup",
				Flags:  []cli.Flag{configFlag(), fileFlag("Backup file, - for stdin"), passphraseFlag},
				Action: storageRestore,
			},
			{
				Name:   "gc",
				Usage:  "Run Badger value log garbage collection",
				Flags:  []cli.Flag{configFlag()},
				Action: storageGC,
			},
			{
				Name:   "sweep",
				Usage:  "Delete expired sessions of every configured tenant",
				Flags:  []cli.Flag{configFlag()},
				Action: storageSweep,
			},
		},
	}
}

// openBadger opens the configured Badger store.
func openBadger(c *cli.Context) (*storage.BadgerStore, error) {
	cfg, err := loadContextConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type != storage.BadgerKind {
		return nil, fmt.Errorf("storage type is %q, this command needs %q", cfg.Storage.Type, storage.BadgerKind)
	}
	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Badger.GCInterval = 0
	return storage.OpenBadger(sc.Badger, logger.Discard())
}

// backupPassphrase returns the passphrase named by --passphrase-env, or nil
// when the flag is unset.
func backupPassphrase(c *cli.Context) ([]byte, error) {
	name := c.String("passphrase-env")
	if name == "" {
		return nil, nil
	}
	v := os.Getenv(name)
	if v == "" {
		return nil, fmt.Errorf("environment variable %s is empty", name)
	}
	return []byte(v), nil
}

type backupResult struct {
	File      string `json:"file"`
	Version   uint64 `json:"version"`
	Encrypted bool   `json:"encrypted"`
}

func storageBackup(c *cli.Context) error {
	passphrase, err := backupPassphrase(c)
	if err != nil {
		return err
	}
	store, err := openBadger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	path := c.String("file")
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	var enc io.WriteCloser
	if passphrase != nil {
		if enc, err = storage.NewEncryptWriter(w, passphrase); err != nil {
			return err
		}
		w = enc
	}

	version, err := store.Backup(w)
	if err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
	}
	if path == "-" {
		return nil
	}
	return render(c, backupResult{File: path, Version: version, Encrypted: enc != nil})
}

func storageRestore(c *cli.Context) error {
	passphrase, err := backupPassphrase(c)
	if err != nil {
		return err
	}
	store, err := openBadger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	path := c.String("file")
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if passphrase != nil {
		if r, err = storage.NewDecryptReader(r, passphrase); err != nil {
			return err
		}
	}

	if err := store.Restore(r); err != nil {
		return err
	}
	return render(c, map[string]any{"status": "OK", "file": path})
}

type gcResult struct {
	Reclaimed uint64 `json:"reclaimedBytes"`
	TotalSize uint64 `json:"totalSizeBytes"`
}

func storageGC(c *cli.Context) error {
	store, err := openBadger(c)
	if err != nil {
		return err
	}
	defer store.Close()

	reclaimed, err := store.GC()
	if err != nil {
		return err
	}
	return render(c, gcResult{Reclaimed: reclaimed, TotalSize: store.Stats().TotalSize()})
}

func storageSweep(c *cli.Context) error {
	cfg, err := loadContextConfig(c)
	if err != nil {
		return err
	}
	reg, err := config.NewRegistry(cfg)
	if err != nil {
		return err
	}

	sc, err := storageConfig(cfg)
	if err != nil {
		return err
	}
	sc.Badger.GCInterval = 0
	store, err := storage.Open(c.Context, sc, logger.Discard())
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UnixMilli()
	deleted := make(map[string]any)
	for _, t := range reg.Tenants() {
		n, err := store.DeleteExpiredSessions(c.Context, t, now)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t, err)
		}
		deleted[t.String()] = n
	}
	return render(c, map[string]any{"deleted": deleted})
}
