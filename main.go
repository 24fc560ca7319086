package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/vaultkey/cmd"
	"github.com/illarion/vaultkey/internal/config"
	"github.com/illarion/vaultkey/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	setup()

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "key":
		runKey(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "kdf":
		runKdf(ctx, os.Args[2:])
	case "meta":
		runMeta(ctx, os.Args[2:])
	case "settings":
		runSettings(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "token":
		runToken(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// setup loads the configuration and installs the stderr logger
func setup() {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cmd.Configure(cfg, logger)
}

// databaseFlags registers the flags every database command accepts
func databaseFlags(fs *flag.FlagSet) *cmd.UnlockOptions {
	opts := &cmd.UnlockOptions{}
	fs.StringVar(&opts.Path, "db", core.DefaultFile, "Database file")
	fs.StringVar(&opts.KeyFile, "keyfile", "", "Key file (default $"+core.EnvKeyFile+")")
	return opts
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func kdfFlags(fs *flag.FlagSet) *cmd.KdfOptions {
	opts := &cmd.KdfOptions{}
	fs.IntVar(&opts.TimeMs, "time", 0, "Target decryption time in milliseconds (simple mode)")
	fs.StringVar(&opts.Tier, "tier", "", "Compatibility tier: modern or legacy (simple mode)")
	fs.BoolVar(&opts.Advanced, "advanced", false, "Choose KDF parameters manually")
	fs.StringVar(&opts.Algorithm, "algorithm", "", "KDF algorithm: argon2 or aes")
	fs.IntVar(&opts.Rounds, "rounds", 0, "KDF rounds")
	fs.UintVar(&opts.MemoryKiB, "memory", 0, "Argon2 memory in KiB")
	fs.UintVar(&opts.Parallelism, "parallelism", 0, "Argon2 threads")
	return opts
}

func runInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	db := fs.String("db", core.DefaultFile, "Database file")
	opts := cmd.InitOptions{}
	fs.StringVar(&opts.Name, "name", "", "Database name")
	fs.StringVar(&opts.Description, "description", "", "Database description")
	fs.BoolVar(&opts.NoPassword, "no-password", false, "Create the database without a password")
	fs.StringVar(&opts.KeyFile, "keyfile", "", "Add an existing key file")
	fs.StringVar(&opts.GenerateKeyFile, "generate-keyfile", "", "Generate a key file with this name next to the database")
	fs.BoolVar(&opts.Token, "token", false, "Add the software challenge-response token")
	fs.BoolVar(&opts.Yes, "yes", false, "Accept all warnings")
	kdf := kdfFlags(fs)
	parse(fs, args)

	opts.Path = *db
	opts.Kdf = *kdf
	cmd.Init(ctx, opts)
}

func runStatus(_ context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	opts := databaseFlags(fs)
	parse(fs, args)

	cmd.Status(opts.Path, opts.KeyFile)
}

func runKey(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("key", flag.ExitOnError)
	unlock := databaseFlags(fs)
	opts := cmd.KeyOptions{}
	fs.BoolVar(&opts.NewPassword, "new-password", false, "Set or replace the password")
	fs.BoolVar(&opts.RemovePassword, "remove-password", false, "Remove the password")
	fs.StringVar(&opts.NewKeyFile, "new-keyfile", "", "Set or replace the key file")
	fs.StringVar(&opts.GenerateKeyFile, "generate-keyfile", "", "Generate a key file with this name next to the database")
	fs.BoolVar(&opts.RemoveKeyFile, "remove-keyfile", false, "Remove the key file")
	fs.BoolVar(&opts.AddToken, "add-token", false, "Add or rebind the software token")
	fs.BoolVar(&opts.RemoveToken, "remove-token", false, "Remove the software token")
	fs.BoolVar(&opts.Yes, "yes", false, "Apply without asking and accept all warnings")
	parse(fs, args)

	cmd.Key(ctx, *unlock, opts)
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	unlock := databaseFlags(fs)
	yes := fs.Bool("yes", false, "Accept all warnings")
	parse(fs, args)

	cmd.Passwd(ctx, *unlock, *yes)
}

func runKdf(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("kdf", flag.ExitOnError)
	unlock := databaseFlags(fs)
	opts := kdfFlags(fs)
	fs.BoolVar(&opts.Simple, "simple", false, "Derive parameters from the decryption time")
	fs.BoolVar(&opts.Benchmark, "benchmark", false, "Calibrate rounds to the decryption time (advanced mode)")
	yes := fs.Bool("yes", false, "Apply without asking and accept all warnings")
	parse(fs, args)

	cmd.Kdf(ctx, *unlock, *opts, *yes)
}

func runMeta(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("meta", flag.ExitOnError)
	unlock := databaseFlags(fs)
	name := fs.String("name", "", "Database name")
	description := fs.String("description", "", "Database description")
	username := fs.String("username", "", "Default username for new entries")
	historyItems := fs.Int("history-items", 0, "Maximum history items per entry (-1 = unlimited)")
	historySize := fs.Int("history-size", 0, "Maximum history size per entry in MiB (-1 = unlimited)")
	recycleBin := fs.String("recycle-bin", "", "Recycle bin: on or off")
	yes := fs.Bool("yes", false, "Apply without asking")
	parse(fs, args)

	// only flags given on the command line change anything
	opts := cmd.MetaOptions{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			opts.Name = name
		case "description":
			opts.Description = description
		case "username":
			opts.DefaultUsername = username
		case "history-items":
			opts.HistoryMaxItems = historyItems
		case "history-size":
			opts.HistoryMaxSizeMiB = historySize
		case "recycle-bin":
			opts.RecycleBin = recycleBin
		}
	})

	cmd.Meta(ctx, *unlock, opts, *yes)
}

func runSettings(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	unlock := databaseFlags(fs)
	opts := cmd.SettingsOptions{}
	fs.StringVar(&opts.Cipher, "cipher", "", "Body cipher: aes256-gcm or chacha20-poly1305")
	fs.StringVar(&opts.Import, "import", "", "Replace general settings from a YAML file")
	fs.BoolVar(&opts.Export, "export", false, "Print general settings as YAML")
	fs.BoolVar(&opts.Yes, "yes", false, "Apply without asking")
	parse(fs, args)

	cmd.Settings(ctx, *unlock, opts)
}

func runKeyring(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultkey keyring <save|delete|status>")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("keyring", flag.ExitOnError)
	unlock := databaseFlags(fs)
	parse(fs, args[1:])

	switch args[0] {
	case "save":
		cmd.KeyringSave(ctx, *unlock)
	case "delete":
		cmd.KeyringDelete(unlock.Path)
	case "status":
		cmd.KeyringStatus(unlock.Path)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		os.Exit(1)
	}
}

func runToken(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultkey token <enroll|remove|status> [--slot n]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	slot := fs.Int("slot", 0, "Token slot (default from config)")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	parse(fs, args[1:])

	switch args[0] {
	case "enroll":
		cmd.TokenEnroll(*slot, *yes)
	case "remove":
		cmd.TokenRemove(*slot, *yes)
	case "status":
		cmd.TokenStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown token command: %s\n", args[0])
		os.Exit(1)
	}
}

func runCompact(_ context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	opts := databaseFlags(fs)
	parse(fs, args)

	cmd.Compact(opts.Path)
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultkey completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("vaultkey - password database master key and encryption manager")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vaultkey <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a new database")
	fmt.Println("  status      Show database status without unlocking")
	fmt.Println("  key         Change the master key components")
	fmt.Println("  passwd      Change the database password")
	fmt.Println("  kdf         Show or change key derivation settings")
	fmt.Println("  meta        Change general database information")
	fmt.Println("  settings    Preview or apply database settings")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  token       Manage the software challenge-response token")
	fmt.Println("  compact     Compact database to reclaim disk space")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  vaultkey init                              # Create passwords.vault")
	fmt.Println("  vaultkey init --generate-keyfile vault.key # Password plus key file")
	fmt.Println("  vaultkey kdf --time 2000                   # Recalibrate for 2 s unlock")
	fmt.Println("  vaultkey status                            # Check database status")
	fmt.Println()
	fmt.Println("Use 'vaultkey help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("vaultkey init [--db file] [--name n] [--description d] [--no-password]")
		fmt.Println("              [--keyfile file | --generate-keyfile name] [--token]")
		fmt.Println("              [--time ms] [--tier modern|legacy]")
		fmt.Println("              [--advanced --algorithm argon2|aes --rounds n --memory kib --parallelism n] [--yes]")
		fmt.Println()
		fmt.Println("Creates a new database. The password is read from $VAULTKEY_PASSWORD or")
		fmt.Println("prompted twice. Key derivation is calibrated to the configured decryption")
		fmt.Println("time unless --advanced parameters are given.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  vaultkey init")
		fmt.Println("  vaultkey init --tier legacy --time 500")
		fmt.Println("  vaultkey init --generate-keyfile vault.key --token")
	case "status":
		fmt.Println("vaultkey status [--db file] [--keyfile file]")
		fmt.Println()
		fmt.Println("Shows format version, timestamps, cipher, key derivation parameters and")
		fmt.Println("master key components. With a key file, warns when git tracks it.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "key":
		fmt.Println("vaultkey key [--db file] [--keyfile file] [--new-password | --remove-password]")
		fmt.Println("             [--new-keyfile file | --generate-keyfile name | --remove-keyfile]")
		fmt.Println("             [--add-token | --remove-token] [--yes]")
		fmt.Println()
		fmt.Println("Changes the master key. Without flags lists the current components.")
		fmt.Println("The pending change is shown before it is saved.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  vaultkey key --generate-keyfile vault.key")
		fmt.Println("  vaultkey key --remove-token")
	case "passwd":
		fmt.Println("vaultkey passwd [--db file] [--keyfile file] [--yes]")
		fmt.Println()
		fmt.Println("Changes the database password.")
		fmt.Println("Requires both the current and new passwords.")
		fmt.Println("Updates the keyring entry when one exists.")
	case "kdf":
		fmt.Println("vaultkey kdf [--db file] [--keyfile file] [--simple] [--time ms] [--tier modern|legacy]")
		fmt.Println("             [--advanced] [--algorithm argon2|aes] [--rounds n] [--memory kib]")
		fmt.Println("             [--parallelism n] [--benchmark] [--yes]")
		fmt.Println()
		fmt.Println("Shows or changes key derivation. Simple mode derives every parameter from")
		fmt.Println("the target decryption time; advanced mode takes them as given and warns")
		fmt.Println("about unsafe round counts.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  vaultkey kdf")
		fmt.Println("  vaultkey kdf --time 2000")
		fmt.Println("  vaultkey kdf --algorithm aes --time 1000 --benchmark")
	case "meta":
		fmt.Println("vaultkey meta [--db file] [--keyfile file] [--name n] [--description d]")
		fmt.Println("              [--username u] [--history-items n] [--history-size mib]")
		fmt.Println("              [--recycle-bin on|off] [--yes]")
		fmt.Println()
		fmt.Println("Changes the general database information.")
	case "settings":
		fmt.Println("vaultkey settings [--db file] [--keyfile file] [--cipher c] [--import file] [--export] [--yes]")
		fmt.Println()
		fmt.Println("Without flags prints every setting. --export prints the general settings")
		fmt.Println("as YAML and --import applies such a file. Changes are previewed as a diff.")
	case "keyring":
		fmt.Println("vaultkey keyring <save|delete|status> [--db file] [--keyfile file]")
		fmt.Println()
		fmt.Println("Stores the database password in the OS keyring so commands do not")
		fmt.Println("prompt for it. A stale entry is removed when it stops working.")
	case "token":
		fmt.Println("vaultkey token <enroll|remove|status> [--slot n] [--yes]")
		fmt.Println()
		fmt.Println("Manages the software challenge-response token. Its HMAC-SHA1 secrets")
		fmt.Println("live in the OS keyring, one per slot.")
	case "compact":
		fmt.Println("vaultkey compact [--db file]")
		fmt.Println()
		fmt.Println("Compacts the database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'passwd', but can be run manually.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "completion":
		fmt.Println("vaultkey completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(vaultkey completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(vaultkey completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  vaultkey completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
