package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"

	"thumbnail-gallery/internal/broadcast"
	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/ordering"
	"thumbnail-gallery/internal/pipeline"
	"thumbnail-gallery/internal/session"
	"thumbnail-gallery/internal/workers"
)

const defaultDatabaseDir = "/database"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	switch command {
	case "stats":
		err = runStats(ctx, db, os.Stdout)
	case "recount":
		target := "all"
		if len(os.Args) > 2 {
			target = os.Args[2]
		}
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		err = runRecount(ctx, db, target, os.Stdin, os.Stdout, interactive)
	case "regenerate":
		err = runRegenerate(ctx, db, os.Getenv("RESIZE_BACKEND"), os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command)) //nolint:gosec // G705 - sanitized via allowlist
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context) (*database.Database, error) {
	dir := os.Getenv("DATABASE_DIR")
	if dir == "" {
		dir = defaultDatabaseDir
	}
	driver := strings.ToLower(os.Getenv("DATABASE_DRIVER"))
	return database.Open(ctx, database.Options{
		Driver: driver,
		Path:   filepath.Join(dir, "gallery.db"),
		URL:    os.Getenv("DATABASE_URL"),
	})
}

// sanitizeCommand replaces anything outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("Thumbnail Gallery Administration")
	fmt.Println("")
	fmt.Println("Usage: gallery-admin <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  stats                 - Show image, thumbnail and folder counts")
	fmt.Println("  recount [id|all]      - Renumber image orders of one folder or all folders")
	fmt.Println("  regenerate            - Create thumbnails for images missing tiers")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Printf("  DATABASE_DIR    - Path to database directory (default: %s)\n", defaultDatabaseDir)
	fmt.Println("  DATABASE_DRIVER - sqlite3 (default) or postgres")
	fmt.Println("  DATABASE_URL    - Postgres connection string")
	fmt.Println("  RESIZE_BACKEND  - imaging (default), nfnt or vips")
}

func runStats(ctx context.Context, db *database.Database, out io.Writer) error {
	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Fprintf(out, "Images:          %d\n", stats.Images)
	fmt.Fprintf(out, "Pending images:  %d\n", stats.PendingImages)
	fmt.Fprintf(out, "Folders:         %d\n", stats.Folders)

	tiers := make([]string, 0, len(stats.Thumbnails))
	for tier := range stats.Thumbnails {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		fmt.Fprintf(out, "Thumbnails %-6s %d\n", tier+":", stats.Thumbnails[tier])
	}
	return nil
}

func runRecount(ctx context.Context, db *database.Database, target string, in io.Reader, out io.Writer, interactive bool) error {
	var folders []int64
	if target == "all" {
		ids, err := db.FolderIDs(ctx)
		if err != nil {
			return fmt.Errorf("list folders: %w", err)
		}
		folders = append([]int64{database.RootFolderID}, ids...)

		if interactive && !confirm(in, out, fmt.Sprintf("Recount %d folders?", len(folders))) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	} else {
		id, err := strconv.ParseInt(target, 10, 64)
		if err != nil || id < 0 {
			return fmt.Errorf("invalid folder id %q", target)
		}
		if ok, err := db.FolderExists(ctx, id); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("folder %d: %w", id, database.ErrNotFound)
		}
		folders = []int64{id}
	}

	orders := ordering.New(db)
	for _, id := range folders {
		if err := orders.Recount(ctx, id); err != nil {
			return fmt.Errorf("recount folder %d: %w", id, err)
		}
		next, _ := orders.Peek(id)
		fmt.Fprintf(out, "Folder %d: %d ordered images\n", id, next)
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func runRegenerate(ctx context.Context, db *database.Database, backend string, out io.Writer) error {
	if backend == "vips" {
		media.InitVips(workers.ForCPU(0))
		defer media.ShutdownVips()
	}
	resizer, err := media.NewResizer(backend)
	if err != nil {
		return err
	}

	// No sessions: results are only persisted.
	notifier := broadcast.New(session.NewRegistry(), db, broadcast.DefaultRetryConfig())
	n := workers.ForCPU(0)
	pipe := pipeline.New(pipeline.Config{Workers: n, QueueCapacity: n}, db, ordering.New(db), notifier, resizer)

	var (
		mu     sync.Mutex
		failed int
	)
	pipe.OnFailure = func(imageID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed++
		fmt.Fprintf(out, "Image %d: %v\n", imageID, err)
	}

	count, err := pipe.GenerateMissingThumbnails(ctx)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "Processed %d images (%d failed)\n", count, failed)
	return nil
}
