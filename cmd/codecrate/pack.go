package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/discover"
	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/safety"
	"github.com/agusespa/codecrate/internal/symbols"
	"github.com/agusespa/codecrate/internal/tokens"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/pkg/config"
	"github.com/agusespa/codecrate/pkg/spinner"
	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"
)

// defaultSidecar is the value --manifest-json takes when given without a path.
const defaultSidecar = "<output>"

const topFilesShown = 5

// packSettings is one repository's configuration with command-line overrides applied.
type packSettings struct {
	cfg      *config.Config
	layout   codec.Layout
	backend  symbols.Policy
	encoding pack.EncodingPolicy
	action   safety.Action
}

type packRun struct {
	root     string
	label    string
	settings packSettings
	repo     codec.Repository
	skipped  []types.SkippedFile
	files    []pack.SourceFile
}

func newPackCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack [ROOT]",
		Short: "Pack one or more repositories into a context document",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd, args, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringArray("repo", nil, "Repository root to pack (repeatable; replaces ROOT)")
	f.StringP("output", "o", "", "Output file (default: config output, relative to the first root)")
	f.Bool("dedupe", false, "Share identical definition bodies in the function library")
	f.String("layout", "", "Layout: auto, stubs or full")
	f.Bool("keep-docstrings", true, "Keep docstrings in stubbed files")
	f.Bool("no-keep-docstrings", false, "Drop docstrings from stubbed files")
	f.Bool("respect-gitignore", true, "Skip files ignored by git")
	f.Bool("no-respect-gitignore", false, "Include files ignored by git")
	f.Bool("manifest", true, "Include the manifest (required by the stubs layout)")
	f.Bool("no-manifest", false, "Omit the manifest (full layout only)")
	f.String("manifest-json", "", "Also write the manifests as JSON (default path: <output>.manifest.json)")
	f.Lookup("manifest-json").NoOptDefVal = defaultSidecar
	f.StringArray("include", nil, "Include glob (repeatable; replaces the configured includes)")
	f.StringArray("exclude", nil, "Exclude glob (repeatable; replaces the configured excludes)")
	f.Int("split-max-chars", 0, "Also write .partN files of at most this many characters")
	f.String("symbol-backend", "", "Symbol backend: auto, tree-sitter, python or none")
	f.Int("workers", 0, "File loading workers (0 = automatic)")
	f.String("encoding-errors", "", "Invalid UTF-8 handling: replace or strict")
	f.Bool("quiet", false, "Suppress progress and token report")
	return cmd
}

func runPack(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	repos, _ := cmd.Flags().GetStringArray("repo")
	var roots []string
	switch {
	case len(repos) > 0 && len(args) > 0:
		return errcat.Errorf(types.ErrUsage, "pack: specify either ROOT or --repo (repeatable), not both")
	case len(repos) > 0:
		roots = repos
	case len(args) == 1:
		roots = args
	default:
		return errcat.Errorf(types.ErrUsage, "pack: ROOT is required when --repo is not used")
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	var spin *spinner.Spinner
	if !quiet && isTerminal(stderr) {
		spin = spinner.New(stderr, "Packing...")
		spin.Start()
		defer spin.Stop()
	}

	var runs []*packRun
	usedLabels := make(map[string]bool)
	for _, root := range roots {
		settings, err := resolvePackSettings(cmd, root)
		if err != nil {
			return err
		}
		r := &packRun{root: root, label: uniqueLabel(root, usedLabels), settings: settings}
		if spin != nil {
			spin.Update(fmt.Sprintf("Packing %s...", r.label))
		}
		if err := packRepository(cmd.Context(), r); err != nil {
			return err
		}
		runs = append(runs, r)
	}

	first := runs[0].settings
	encodeRepos := make([]codec.Repository, len(runs))
	for i, r := range runs {
		encodeRepos[i] = r.repo
	}
	encoded, err := codec.Encode(encodeRepos, codec.EncodeOptions{
		Layout:       first.layout,
		OmitManifest: !first.cfg.Manifest,
	})
	if err != nil {
		return err
	}

	outPath := first.cfg.Output
	if o, _ := cmd.Flags().GetString("output"); o != "" {
		outPath = o
	} else if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(runs[0].root, outPath)
	}

	if err := writeText(outPath, encoded.Text); err != nil {
		return err
	}

	extra := 0
	for _, part := range codec.SplitByMaxChars(encoded.Text, outPath, first.cfg.SplitMaxChars) {
		if part.Path == outPath {
			continue
		}
		if err := writeText(part.Path, part.Content); err != nil {
			return err
		}
		extra++
	}

	if sidecarPath, _ := cmd.Flags().GetString("manifest-json"); sidecarPath != "" {
		if sidecarPath == defaultSidecar {
			sidecarPath = codec.SidecarPath(outPath)
		}
		data, err := encoded.Sidecar.Marshal()
		if err != nil {
			return err
		}
		if err := writeText(sidecarPath, string(data)); err != nil {
			return err
		}
	}

	if spin != nil {
		spin.Stop()
	}
	for _, r := range runs {
		warn(stderr, skippedWarnings(r))
		if !quiet {
			tokenReport(stderr, r)
		}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Wrote %s", outPath)
	if extra > 0 {
		fmt.Fprintf(&msg, " and %d split part file(s)", extra)
	}
	if len(runs) > 1 {
		fmt.Fprintf(&msg, " for %d repos", len(runs))
	}
	fmt.Fprintln(stdout, msg.String()+".")
	return nil
}

// resolvePackSettings loads the repository's codecrate.toml and applies the
// flags the user set explicitly.
func resolvePackSettings(cmd *cobra.Command, root string) (packSettings, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return packSettings{}, errcat.Errorf(types.ErrUsage, "%s", err)
	}

	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Include, _ = flags.GetStringArray("include")
	}
	if flags.Changed("exclude") {
		cfg.Exclude, _ = flags.GetStringArray("exclude")
	}
	if dedupe, _ := flags.GetBool("dedupe"); dedupe {
		cfg.Dedupe = true
	}
	cfg.KeepDocstrings = boolOverride(cmd, "keep-docstrings", cfg.KeepDocstrings)
	cfg.RespectGitignore = boolOverride(cmd, "respect-gitignore", cfg.RespectGitignore)
	cfg.Manifest = boolOverride(cmd, "manifest", cfg.Manifest)
	if flags.Changed("split-max-chars") {
		cfg.SplitMaxChars, _ = flags.GetInt("split-max-chars")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("layout") {
		cfg.Layout, _ = flags.GetString("layout")
	}
	if flags.Changed("symbol-backend") {
		cfg.SymbolBackend, _ = flags.GetString("symbol-backend")
	}
	if flags.Changed("encoding-errors") {
		cfg.EncodingErrors, _ = flags.GetString("encoding-errors")
	}
	if cfg.SplitMaxChars < 0 || cfg.Workers < 0 {
		return packSettings{}, errcat.Errorf(types.ErrUsage, "--split-max-chars and --workers must not be negative")
	}

	s := packSettings{cfg: cfg}
	if s.layout, err = codec.ParseLayout(cfg.Layout); err != nil {
		return packSettings{}, err
	}
	if s.backend, err = symbols.ParsePolicy(cfg.SymbolBackend); err != nil {
		return packSettings{}, err
	}
	if s.encoding, err = pack.ParseEncodingPolicy(cfg.EncodingErrors); err != nil {
		return packSettings{}, err
	}
	if s.action, err = safety.ParseAction(cfg.SafetyAction); err != nil {
		return packSettings{}, err
	}
	if !cfg.Manifest && s.layout == codec.LayoutStubs {
		return packSettings{}, errcat.Errorf(types.ErrUsage, "--no-manifest requires --layout full")
	}
	return s, nil
}

// boolOverride resolves a --name / --no-name flag pair against the configured value.
func boolOverride(cmd *cobra.Command, name string, configured bool) bool {
	flags := cmd.Flags()
	if flags.Changed("no-" + name) {
		if off, _ := flags.GetBool("no-" + name); off {
			return false
		}
	}
	if flags.Changed(name) {
		on, _ := flags.GetBool(name)
		return on
	}
	return configured
}

func packRepository(ctx context.Context, r *packRun) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := r.settings.cfg

	disc, err := discover.Discover(r.root, discover.Options{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.RespectGitignore,
	})
	if err != nil {
		return err
	}

	counter, err := tokens.NewCounter(cfg.TokenEncoding, tokens.DefaultCacheSize)
	if err != nil {
		return err
	}
	files, err := pack.LoadFiles(ctx, disc.Root, disc.Files, pack.LoadOptions{
		Workers:  cfg.Workers,
		Encoding: r.settings.encoding,
		Counter:  counter,
	})
	if err != nil {
		return err
	}

	files, r.skipped = pack.Partition(files, safetyFilter(cfg, r.settings.action))
	r.files = files

	registry, err := symbols.NewRegistry(r.settings.backend)
	if err != nil {
		return err
	}
	defer registry.Close()

	result, library, err := pack.Assemble(disc.Root, r.label, files, registry, pack.Options{
		KeepDocstrings: cfg.KeepDocstrings,
		Dedupe:         cfg.Dedupe,
	})
	if err != nil {
		return err
	}
	r.repo = codec.Repository{Label: r.label, Pack: result, Library: library}
	return nil
}

// safetyFilter is the configured sensitive-file filter, or nil when safety is off.
func safetyFilter(cfg *config.Config, action safety.Action) *safety.Filter {
	if !cfg.Safety {
		return nil
	}
	return safety.NewFilter(safety.Options{
		ContentSniff: cfg.ContentSniff,
		Action:       action,
		Patterns:     cfg.SensitivePatterns,
	})
}

func skippedWarnings(r *packRun) []string {
	var out []string
	for _, s := range r.skipped {
		verb := "skipped"
		if r.settings.action == safety.ActionRedact {
			verb = "redacted"
		}
		out = append(out, fmt.Sprintf("[%s] %s sensitive file %s (%s)", r.label, verb, s.Path, s.Reason))
	}
	return out
}

func tokenReport(w io.Writer, r *packRun) {
	perFile := make(map[string]int, len(r.files))
	total := 0
	for _, f := range r.files {
		perFile[f.Path] = f.Tokens
		total += f.Tokens
	}
	fmt.Fprintf(w, "[%s] %d file(s), ~%d tokens (%s)\n", r.label, len(r.files), total, r.settings.cfg.TokenEncoding)
	fmt.Fprint(w, tokens.FormatTopFiles(perFile, topFilesShown))
}

// uniqueLabel names a repository by its path relative to the working directory,
// or by its base name when it lies elsewhere. Repeats get -2, -3, ... suffixes.
func uniqueLabel(root string, used map[string]bool) string {
	base := defaultLabel(root)
	label := base
	for n := 2; used[label]; n++ {
		label = fmt.Sprintf("%s-%d", base, n)
	}
	used[label] = true
	return label
}

func defaultLabel(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			if rel == "." {
				return filepath.Base(abs)
			}
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(abs)
}

// isTerminal reports whether w is an interactive character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
