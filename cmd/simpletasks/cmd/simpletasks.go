package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"simpletasks/internal/bookmarks"
	"simpletasks/internal/config"
	"simpletasks/internal/environment"
	"simpletasks/internal/store"
	"simpletasks/internal/store/file"
	"simpletasks/internal/store/sqlite"
	"simpletasks/internal/tasks"
	"simpletasks/internal/tui"
	"simpletasks/internal/utils"
	"simpletasks/internal/webapp"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string    // Path to config file (for testing)
	DBPath       string    // Storage path override, sqlite file or lists directory (for testing)
	CachePath    string    // Offline cache database path (for testing)
	Stdin        io.Reader // Prompt and TUI input, os.Stdin when nil
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	rootCmd := NewSimpleTasks(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		// Check if --json flag was passed to output error as JSON
		jsonOutput := containsJSONFlag(args)
		if jsonOutput {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			// Emit ERROR result code in no-prompt mode
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// app carries what every subcommand needs once flags and config are resolved
type app struct {
	cfg      *Config
	settings *config.Config
	stdout   io.Writer
	stderr   io.Writer
	closeLog func()
}

// NewSimpleTasks creates the root command with injectable IO
func NewSimpleTasks(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}
	a := &app{cfg: cfg, stdout: stdout, stderr: stderr, closeLog: func() {}}

	cmd := &cobra.Command{
		Use:   "simpletasks",
		Short: "A task list and reading list that works offline",
		Long: "simpletasks keeps a to-do list and a reading list of bookmarked books.\n" +
			"Run without arguments it opens the app in a terminal, or prints the readme otherwise.",
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShim()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newVersionCmd(stdout))
	cmd.AddCommand(newTUICmd(a))
	cmd.AddCommand(newReadmeCmd(a))
	cmd.AddCommand(newTaskCmd(a))
	cmd.AddCommand(newBookCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newCacheCmd(a))

	return cmd
}

// load reads the config file and applies flag overrides
func (a *app) load(cmd *cobra.Command) error {
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = a.cfg.ConfigPath
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	outputFormat := a.cfg.OutputFormat
	if jsonOutput {
		outputFormat = "json"
	}
	settings.ApplyFlags(noPrompt || a.cfg.NoPrompt, outputFormat, verbose || a.cfg.Verbose)
	if a.cfg.DBPath != "" {
		settings.Storage.Path = a.cfg.DBPath
	}
	if a.cfg.CachePath != "" {
		settings.Offline.CachePath = a.cfg.CachePath
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	a.cfg.NoPrompt = settings.NoPrompt
	utils.SetVerboseMode(settings.Logging.Verbose)
	if settings.Logging.File != "" {
		closeLog, err := utils.OpenLogFile(settings.Logging.File)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		a.closeLog = closeLog
	}

	a.settings = settings
	utils.GetLogger().Debug("Loaded config (storage %s at %s)", settings.Storage.Backend, settings.GetStoragePath())
	return nil
}

// jsonOutput reports whether results should be printed as JSON
func (a *app) jsonOutput() bool {
	return a.settings != nil && a.settings.OutputFormat == "json"
}

// stdin returns the reader prompts and the TUI consume
func (a *app) stdin() io.Reader {
	if a.cfg.Stdin != nil {
		return a.cfg.Stdin
	}
	return os.Stdin
}

// result prints a result code in no-prompt mode
func (a *app) result(code string) {
	if a.cfg.NoPrompt {
		_, _ = fmt.Fprintln(a.stdout, code)
	}
}

// confirm asks before a destructive action unless prompts are disabled
func (a *app) confirm(prompt string) bool {
	if a.cfg.NoPrompt {
		return true
	}
	return utils.PromptYesNoWithReader(prompt, a.stdin(), a.stdout)
}

// session holds the open list store and the managers over it
type session struct {
	slots store.Slots
	tasks *tasks.Manager
	books *bookmarks.Manager
}

// openSession opens the configured storage and loads both collections
func (a *app) openSession() (*session, error) {
	slots, err := openSlots(a.settings)
	if err != nil {
		return nil, err
	}
	return &session{
		slots: slots,
		tasks: tasks.New(slots, tasks.WithKey(a.settings.Storage.TasksKey)),
		books: bookmarks.New(slots, a.settings.Storage.BooksKey),
	}, nil
}

// Close closes the underlying store
func (s *session) Close() error {
	return s.slots.Close()
}

// openSlots opens the slot store selected by storage.backend
func openSlots(settings *config.Config) (store.Slots, error) {
	path := settings.GetStoragePath()
	switch settings.Storage.Backend {
	case config.BackendFile:
		slots, err := file.New(file.Config{Dir: path})
		if err != nil {
			return nil, err
		}
		return slots, nil
	case config.BackendSQLite:
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("could not create data directory: %w", err)
		}
		slots, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return slots, nil
	default:
		return nil, utils.ErrStorageNotConfigured(settings.Storage.Backend)
	}
}

// runShim shows the app when running in a terminal, the readme otherwise
func (a *app) runShim() error {
	view, err := environment.Detect(a.settings.UI.Mode, a.stdin(), a.stdout)
	if err != nil {
		return err
	}
	utils.GetLogger().Debug("Environment shim selected %s view", view)
	if view == environment.ViewApp {
		return a.runTUI()
	}
	return a.printReadme()
}

// runTUI runs the interactive app until the user quits
func (a *app) runTUI() error {
	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p := tea.NewProgram(tui.New(s.tasks, s.books),
		tea.WithInput(a.stdin()),
		tea.WithOutput(a.stdout),
		tea.WithAltScreen(),
	)
	_, err = p.Run()
	return err
}

// printReadme renders the embedded readme for the output terminal
func (a *app) printReadme() error {
	content := string(webapp.Readme())
	if a.jsonOutput() {
		return outputJSON(readmeResponse{Readme: content, Result: ResultInfoOnly}, a.stdout)
	}
	styled := environment.IsTerminal(a.stdout)
	_, _ = fmt.Fprint(a.stdout, environment.RenderReadme(content, environment.Width(a.stdout), styled))
	a.result(ResultInfoOnly)
	return nil
}

// newVersionCmd creates the 'version' subcommand
func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skip config loading
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "simpletasks version %s\n", Version)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newTUICmd creates the 'tui' subcommand
func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newReadmeCmd creates the 'readme' subcommand
func newReadmeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "readme",
		Short: "Show the readme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printReadme()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// JSON response types

type readmeResponse struct {
	Readme string `json:"readme"`
	Result string `json:"result"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

// outputJSON writes response as a single JSON line
func outputJSON(response any, stdout io.Writer) error {
	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}
