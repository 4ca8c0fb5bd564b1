package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/feed"
	"github.com/vdavid/bbs2ch/internal/filter"
	"github.com/vdavid/bbs2ch/internal/models"
)

var errUsage = errors.New("usage")

// Store is what the commands read and edit directly. *db.Store satisfies it.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (*models.Board, error)
	GetBoardByURL(ctx context.Context, url string) (*models.Board, error)
	GetBoards(ctx context.Context) ([]models.Board, error)
	GetThreadInfo(ctx context.Context, threadID string) (*models.ThreadInfo, error)
	GetThreads(ctx context.Context, boardID string) ([]models.Thread, error)
	GetThreadsFull(ctx context.Context, boardID string) ([]models.Thread, error)
	GetMessages(ctx context.Context, threadID string, number int) ([]models.Message, error)
	SaveFilterRule(ctx context.Context, rule *models.FilterRule) error
	ListFilterRules(ctx context.Context) ([]models.FilterRule, error)
	DeleteFilterRule(ctx context.Context, ruleID string) error
}

type cli struct {
	store   Store
	service bbs.BBSService
	out     io.Writer
}

type command struct {
	usage string
	run   func(c *cli, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"menu":    {"menu", (*cli).menu},
	"boards":  {"boards", (*cli).boards},
	"board":   {"board <board-id|url>", (*cli).board},
	"threads": {"threads [-full] <board-id|url>", (*cli).threads},
	"sync":    {"sync [-full] <thread-id>", (*cli).sync},
	"read":    {"read [-from n] [-hidden] <thread-id>", (*cli).read},
	"post":    {"post [-name s] [-mail s] [-yes] -m message <thread-id>", (*cli).post},
	"feed":    {"feed <thread-id>", (*cli).feed},
	"prune":   {"prune <board-id|url>", (*cli).prune},
	"rule":    {"rule list | rule add -field f -pattern p [-reason r] [-chain] [-board url] [-dat n] | rule rm <id>", (*cli).rule},
}

var commandOrder = []string{"menu", "boards", "board", "threads", "sync", "read", "post", "feed", "prune", "rule"}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: bbs2ch <command> [flags] [args]")
	_, _ = fmt.Fprintln(w)
	for _, name := range commandOrder {
		_, _ = fmt.Fprintf(w, "  bbs2ch %s\n", commands[name].usage)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd.run(c, ctx, args[1:])
}

// parse parses a command's flags and checks it got exactly want positional arguments.
func parse(fs *flag.FlagSet, args []string, want int) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != want {
		return fmt.Errorf("%w: %s expects %d argument(s)", errUsage, fs.Name(), want)
	}
	return nil
}

// resolveBoard accepts a board ID or a board URL.
func (c *cli) resolveBoard(ctx context.Context, ref string) (*models.Board, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if !strings.HasSuffix(ref, "/") {
			ref += "/"
		}
		return c.store.GetBoardByURL(ctx, ref)
	}
	return c.store.GetBoard(ctx, ref)
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *cli) menu(ctx context.Context, args []string) error {
	if err := parse(flag.NewFlagSet("menu", flag.ContinueOnError), args, 0); err != nil {
		return err
	}

	result, err := c.service.RefreshMenu(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "menu: %s (%d boards)\n", result.Status, result.Entries)
	return err
}

func (c *cli) boards(ctx context.Context, args []string) error {
	if err := parse(flag.NewFlagSet("boards", flag.ContinueOnError), args, 0); err != nil {
		return err
	}

	boards, err := c.store.GetBoards(ctx)
	if err != nil {
		return err
	}

	tw := c.table()
	_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tTITLE\tURL")
	for _, b := range boards {
		title := b.Title
		if b.Favorite {
			title = "★ " + title
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Category, title, b.URL)
	}
	return tw.Flush()
}

func (c *cli) board(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	b, err := c.resolveBoard(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	result, err := c.service.RefreshBoard(ctx, b.ID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s: %s (%d threads)\n", b.Title, result.Status, result.Entries)
	return err
}

func (c *cli) threads(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("threads", flag.ContinueOnError)
	full := fs.Bool("full", false, "include threads that left the index")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	b, err := c.resolveBoard(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	var threads []models.Thread
	if *full {
		threads, err = c.store.GetThreadsFull(ctx, b.ID)
	} else {
		threads, err = c.store.GetThreads(ctx, b.ID)
	}
	if err != nil {
		return err
	}

	tw := c.table()
	_, _ = fmt.Fprintln(tw, "RANK\tID\tDAT\tREAD\tTITLE")
	for _, th := range threads {
		rank := fmt.Sprint(th.Rank)
		if th.IsMissing() {
			rank = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", rank, th.ID, th.Dat, th.Acquired, th.Total, th.Title)
	}
	return tw.Flush()
}

func (c *cli) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	full := fs.Bool("full", false, "download the whole thread again")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	var result *bbs.SyncResult
	var err error
	if *full {
		result, err = c.service.RefetchThread(ctx, fs.Arg(0))
	} else {
		result, err = c.service.SyncThread(ctx, fs.Arg(0))
	}
	if err != nil {
		return err
	}

	if result.Thread == nil {
		_, err = fmt.Fprintf(c.out, "%s\n", result.Status)
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s: %s, %d new (%d/%d)\n",
		result.Thread.Title, result.Status, result.NewMessages, result.Thread.Acquired, result.Thread.Total)
	return err
}

// filtered loads a thread with its messages and the NG verdict for each.
func (c *cli) filtered(ctx context.Context, threadID string) (*models.ThreadInfo, []filter.Result, error) {
	info, err := c.store.GetThreadInfo(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := c.store.GetMessages(ctx, threadID, 0)
	if err != nil {
		return nil, nil, err
	}
	rules, err := c.store.ListFilterRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	f, err := filter.New(rules)
	if err != nil {
		return nil, nil, err
	}
	return info, f.Apply(info.BoardURL, info.Dat, messages), nil
}

func (c *cli) read(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	from := fs.Int("from", 1, "first message number to show")
	hidden := fs.Bool("hidden", false, "show redacted messages too")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	info, results, err := c.filtered(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(c.out, "%s [%s]\n\n", info.Title, info.BoardTitle)
	for _, r := range results {
		m := r.Message
		if m.Number < *from {
			continue
		}
		if r.Redacted && !*hidden {
			_, _ = fmt.Fprintf(c.out, "%d: (hidden: %s)\n\n", m.Number, r.Reason)
			continue
		}
		header := fmt.Sprintf("%d: %s", m.Number, filter.PlainText(m.Name))
		if m.Mail != "" {
			header += " [" + m.Mail + "]"
		}
		_, _ = fmt.Fprintf(c.out, "%s %s\n", header, m.DateID)
		for line := range strings.SplitSeq(filter.PlainText(m.Body), "\n") {
			_, _ = fmt.Fprintf(c.out, "  %s\n", line)
		}
		_, _ = fmt.Fprintln(c.out)
	}
	return nil
}

func (c *cli) post(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	name := fs.String("name", "", "poster name")
	mail := fs.String("mail", "", "mail field, e.g. sage")
	message := fs.String("m", "", "message text")
	yes := fs.Bool("yes", false, "accept the confirmation page and submit again")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	req := bbs.PostRequest{ThreadID: fs.Arg(0), Name: *name, Mail: *mail, Message: *message}
	result, err := c.service.Submit(ctx, req)
	if err != nil {
		return err
	}

	if result.Outcome == bbs.PostNeedsConfirmation {
		if !*yes {
			_, err = fmt.Fprintln(c.out, "the server asks for confirmation; run again with -yes to accept")
			return err
		}
		req.Confirm = result.Fields
		if result, err = c.service.Submit(ctx, req); err != nil {
			return err
		}
	}

	switch result.Outcome {
	case bbs.PostAccepted:
		_, err = fmt.Fprintln(c.out, "posted")
		return err
	case bbs.PostNeedsConfirmation:
		return errors.New("the server asked for confirmation again")
	default:
		return fmt.Errorf("post rejected (marker %q)", result.Marker)
	}
}

func (c *cli) feed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	info, results, err := c.filtered(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	atom, err := feed.Atom(info, results)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, atom)
	return err
}

func (c *cli) prune(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	b, err := c.resolveBoard(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	removed, err := c.service.PruneBoard(ctx, b.ID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s: removed %d threads\n", b.Title, removed)
	return err
}

func (c *cli) rule(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: rule expects list, add or rm", errUsage)
	}

	switch args[0] {
	case "list":
		if err := parse(flag.NewFlagSet("rule list", flag.ContinueOnError), args[1:], 0); err != nil {
			return err
		}
		rules, err := c.store.ListFilterRules(ctx)
		if err != nil {
			return err
		}
		tw := c.table()
		_, _ = fmt.Fprintln(tw, "ID\tFIELD\tPATTERN\tCHAIN\tSCOPE\tREASON")
		for _, r := range rules {
			scope := strings.TrimSpace(r.BoardURL + " " + r.Dat)
			if scope == "" {
				scope = "*"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", r.ID, r.Field, r.Pattern, r.ChainID, scope, r.Reason)
		}
		return tw.Flush()

	case "add":
		fs := flag.NewFlagSet("rule add", flag.ContinueOnError)
		r := models.FilterRule{}
		fs.StringVar(&r.Field, "field", "", "name, mail, id or message")
		fs.StringVar(&r.Pattern, "pattern", "", "regular expression")
		fs.StringVar(&r.Reason, "reason", "", "shown instead of the message")
		fs.BoolVar(&r.ChainID, "chain", false, "also hide every message with the same ID")
		fs.StringVar(&r.BoardURL, "board", "", "only apply to this board URL")
		fs.StringVar(&r.Dat, "dat", "", "only apply to this thread")
		if err := parse(fs, args[1:], 0); err != nil {
			return err
		}
		if err := filter.ValidateRule(r); err != nil {
			return err
		}
		if err := c.store.SaveFilterRule(ctx, &r); err != nil {
			return err
		}
		_, err := fmt.Fprintf(c.out, "added rule %s\n", r.ID)
		return err

	case "rm":
		fs := flag.NewFlagSet("rule rm", flag.ContinueOnError)
		if err := parse(fs, args[1:], 1); err != nil {
			return err
		}
		return c.store.DeleteFilterRule(ctx, fs.Arg(0))

	default:
		return fmt.Errorf("%w: unknown rule subcommand %q", errUsage, args[0])
	}
}
