// Command historyctl inspects and edits a user's chat history over the
// OpenGPT HTTP API.
//
// Usage:
//
//	historyctl [flags] list
//	historyctl [flags] show <chat-id>
//	historyctl [flags] create [first message]
//	historyctl [flags] delete <chat-id>
//	historyctl [flags] clear
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/choraleia/opengpt/pkg/client"
	"github.com/choraleia/opengpt/pkg/historycache"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
)

var errNoCommand = errors.New("no command given: want list, show, create, delete or clear")

type options struct {
	server   string
	email    string
	password string
	token    string
	cookie   string
	policy   string
}

func main() {
	opts := options{}
	flag.StringVar(&opts.server, "server", envOr("OPENGPT_SERVER", "http://127.0.0.1:8088"), "server base URL")
	flag.StringVar(&opts.email, "email", os.Getenv("OPENGPT_EMAIL"), "login email")
	flag.StringVar(&opts.password, "password", os.Getenv("OPENGPT_PASSWORD"), "login password")
	flag.StringVar(&opts.token, "token", os.Getenv("OPENGPT_TOKEN"), "session token, instead of email/password")
	flag.StringVar(&opts.cookie, "cookie", "token", "session cookie name")
	flag.StringVar(&opts.policy, "policy", "strict", "failure policy: lenient or strict")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: historyctl [flags] list|show|create|delete|clear [args]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "historyctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string, out io.Writer) error {
	logger := utils.GetLogger()

	remote := client.NewHistoryClient(opts.server)
	remote.SetCookieName(opts.cookie)
	switch {
	case opts.token != "":
		remote.SetToken(opts.token)
	case opts.email != "":
		user, err := remote.Login(ctx, opts.email, opts.password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		logger.Debug("Logged in", "user", user.Username)
	default:
		return fmt.Errorf("either -token or -email is required")
	}

	var (
		mu       sync.Mutex
		failures []string
	)
	cache := historycache.New(remote,
		historycache.WithPolicy(historycache.ParsePolicy(opts.policy)),
		historycache.WithErrorHandler(func(op, chatID string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, fmt.Sprintf("%s %s: %v", op, chatID, err))
		}),
	)
	if err := cache.Initialize(ctx); err != nil {
		return err
	}

	cmdErr := dispatch(ctx, cache, args, out)
	cache.Wait()

	if cmdErr != nil {
		return cmdErr
	}
	if len(failures) > 0 {
		return fmt.Errorf("background writes failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func dispatch(ctx context.Context, cache *historycache.Cache, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errNoCommand
	}
	switch args[0] {
	case "list":
		printGrouped(out, cache, time.Now())
		return nil
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("show needs a chat id")
		}
		chat, err := cache.Open(ctx, args[1])
		if err != nil {
			return err
		}
		printChat(out, chat)
		return nil
	case "create":
		id := cache.CreateConversation("")
		if len(args) > 1 {
			// The background create has to land before the update replaces it.
			cache.Wait()
			text := strings.Join(args[1:], " ")
			cache.UpdateConversation(id, []models.Message{{ID: uuid.NewString(), Role: models.RoleUser, Content: text}})
		}
		fmt.Fprintln(out, id)
		return nil
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("delete needs a chat id")
		}
		cache.DeleteConversation(args[1])
		return nil
	case "clear":
		return cache.Clear(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printGrouped(out io.Writer, cache *historycache.Cache, now time.Time) {
	groups := cache.Grouped(now)
	if groups.Len() == 0 {
		fmt.Fprintln(out, "No chats yet.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, bucket := range groups.Buckets() {
		if len(bucket.Chats) == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\n", bucket.Label)
		for _, chat := range bucket.Chats {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", chat.ID, chat.Title, chat.UpdatedAt.Local().Format(time.DateTime))
		}
	}
	_ = tw.Flush()
}

func printChat(out io.Writer, chat *models.Chat) {
	fmt.Fprintf(out, "%s (%s)\n", chat.Title, chat.ID)
	for _, m := range chat.Messages {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
