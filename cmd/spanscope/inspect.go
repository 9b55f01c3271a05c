package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepaksharma/spanscope/internal/framestore"
	"github.com/deepaksharma/spanscope/internal/profiler"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List stored frames or print the scope tree of one frame",
	RunE:  inspectStore,
}

func init() {
	inspectCmd.Flags().String("store", "", "frame store path (default from config)")
	inspectCmd.Flags().Int("last", 20, "number of recent frames to list")
	inspectCmd.Flags().Uint64("frame", 0, "store sequence number of a frame to print")
}

func inspectStore(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("store"); path != "" {
		cfg.Store.Path = path
	}
	store, err := openExistingStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if seq, _ := cmd.Flags().GetUint64("frame"); seq > 0 {
		frame, err := store.Get(seq)
		if err != nil {
			return err
		}
		scopes, err := store.Scopes()
		if err != nil {
			return err
		}
		text, err := renderFrameTree(frame, scopes)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("frame %d (seq %d)", frame.Index, seq)))
		fmt.Fprint(out, text)
		return nil
	}

	last, _ := cmd.Flags().GetInt("last")
	recent, err := store.Recent(last)
	if err != nil {
		return err
	}
	t := newTable("seq", "frame", "duration", "goroutines", "scopes")
	for _, sf := range recent {
		t.Row(
			fmt.Sprint(sf.Seq),
			fmt.Sprint(sf.Frame.Index),
			sf.Frame.Duration().Round(10*time.Microsecond).String(),
			fmt.Sprint(len(sf.Frame.Threads)),
			fmt.Sprint(sf.Frame.NumScopes()),
		)
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d stored frames", store.Count())))
	fmt.Fprintln(out, t.Render())
	return nil
}

// openExistingStore opens a store for reading. It never creates the store
// and never compacts it.
func openExistingStore(cfg framestore.Config, logger *zap.Logger) (*framestore.Store, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no store at %s", cfg.Path)
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	cfg.CompactionScheduleCron = ""
	return framestore.Open(cfg, nil, nil, nil, logger)
}

// renderFrameTree prints every goroutine's scopes as an indented tree.
// Runs of identical sibling scopes are collapsed into one line.
func renderFrameTree(frame *profiler.FrameData, details map[profiler.ScopeID]profiler.ScopeDetails) (string, error) {
	var b strings.Builder
	for _, ts := range frame.Threads {
		name := ts.Thread.Name
		if name == "" {
			name = fmt.Sprintf("goroutine %d", ts.Thread.ID)
		}
		b.WriteString(dimStyle.Render(name))
		b.WriteByte('\n')

		scopes, err := profiler.ReadScopes(ts.Info.Stream)
		if err != nil {
			return "", fmt.Errorf("goroutine %d: %w", ts.Thread.ID, err)
		}
		writeScopes(&b, scopes, details, 1)
	}
	return b.String(), nil
}

func writeScopes(b *strings.Builder, scopes []profiler.Scope, details map[profiler.ScopeID]profiler.ScopeDetails, depth int) {
	for i := 0; i < len(scopes); {
		sc := scopes[i]
		run := 1
		total := sc.Duration()
		for i+run < len(scopes) && scopes[i+run].ID == sc.ID && len(scopes[i+run].Children) == 0 && len(sc.Children) == 0 {
			total += scopes[i+run].Duration()
			run++
		}

		label := fmt.Sprintf("scope %d", sc.ID)
		if d, ok := details[sc.ID]; ok {
			label = d.Target + "::" + d.Name
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(label)
		if run > 1 {
			fmt.Fprintf(b, " x%d", run)
		}
		fmt.Fprintf(b, " %s", total.Round(time.Microsecond))
		if sc.Data != "" && run == 1 {
			b.WriteString(" ")
			b.WriteString(dimStyle.Render(sc.Data))
		}
		b.WriteByte('\n')

		if run == 1 {
			writeScopes(b, sc.Children, details, depth+1)
		}
		i += run
	}
}
