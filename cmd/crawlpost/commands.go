package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/crawlpost/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:8080"

// StartFlags mirror the crawl job fields.
type StartFlags struct {
	client.StartRequest
}

type LogsFlags struct {
	Limit int
}

type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c *command) client() (*client.Client, error) {
	url := c.global.APIUrl
	if url == "" {
		url = defaultAPIUrl
	}
	timeout := c.global.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg := client.DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = timeout
	cl := client.New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'crawlpost serve'", url)
	}
	return cl, nil
}

func (c *command) ctx() (context.Context, context.CancelFunc) {
	timeout := c.global.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (c *command) StartCrawler(f StartFlags) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	resp, err := cl.StartCrawler(ctx, f.StartRequest)
	if err != nil {
		return err
	}
	return printJSON(c.out, resp)
}

func (c *command) StopCrawler() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	if err := cl.StopCrawler(ctx); err != nil {
		return err
	}
	st, err := cl.CrawlerStatus(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

func (c *command) CrawlerStatus() error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	st, err := cl.CrawlerStatus(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

func (c *command) CrawlerLogs(f LogsFlags) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	logs, err := cl.CrawlerLogs(ctx, f.Limit)
	if err != nil {
		return err
	}
	for _, e := range logs {
		_, _ = fmt.Fprintf(c.out, "%s [%s] %s\n", e.Timestamp.Local().Format(time.DateTime), e.Level, e.Message)
	}
	return nil
}

func (c *command) LoginState(platform string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	st, err := cl.LoginState(ctx, platform)
	if err != nil {
		return err
	}
	return printJSON(c.out, st)
}

// Login starts a session and polls it until it ends or wait elapses.
func (c *command) Login(platform, account string, interval, wait time.Duration) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	sess, err := cl.InitLogin(ctx, platform, account)
	cancel()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "session %s started for %s\n", sess.SessionID, platform)

	deadline := time.Now().Add(wait)
	for {
		ctx, cancel := c.ctx()
		snap, err := cl.LoginStatus(ctx, sess.SessionID)
		cancel()
		if err != nil {
			return err
		}
		// Each poll returns only messages not delivered before.
		for _, m := range snap.Messages {
			_, _ = fmt.Fprintln(c.out, m)
		}
		if snap.Done || terminal(snap.Status) {
			return printJSON(c.out, snap)
		}
		if time.Now().After(deadline) {
			ctx, cancel := c.ctx()
			_ = cl.CancelLogin(ctx, sess.SessionID)
			cancel()
			return fmt.Errorf("login %s did not finish within %s", sess.SessionID, wait)
		}
		time.Sleep(interval)
	}
}

func terminal(status string) bool {
	return status == "success" || status == "failed" || status == "cancelled"
}

func createCrawlerCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Control the crawler via the daemon",
	}
	cmd.AddCommand(
		createCrawlerStartCommand(global),
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running crawler",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return (&command{global: global, out: cmd.OutOrStdout()}).StopCrawler()
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show crawler status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return (&command{global: global, out: cmd.OutOrStdout()}).CrawlerStatus()
			},
		},
		createCrawlerLogsCommand(global),
		&cobra.Command{
			Use:   "login-status <platform>",
			Short: "Check stored login cookies for a platform",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return (&command{global: global, out: cmd.OutOrStdout()}).LoginState(args[0])
			},
		},
	)
	return cmd
}

func createCrawlerStartCommand(global *GlobalFlags) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a crawl job",
		Long: `Start the crawler with the given job. Only one crawler runs at a time.

Examples:
  crawlpost crawler start --platform=xhs --keywords=coffee
  crawlpost crawler start --platform=dy --type=detail --ids=7301,7302`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&command{global: global, out: cmd.OutOrStdout()}).StartCrawler(*f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Platform, "platform", "", "platform code (xhs, dy, ks, bili, wb, tieba, zhihu)")
	fl.StringVar(&f.CrawlerType, "type", "search", "crawler type (search, detail, creator, login)")
	fl.StringVar(&f.Keywords, "keywords", "", "comma separated search keywords")
	fl.StringVar(&f.SpecifiedIDs, "ids", "", "post ids for detail crawls")
	fl.StringVar(&f.CreatorIDs, "creators", "", "creator ids for creator crawls")
	fl.StringVar(&f.LoginType, "login-type", "qrcode", "login type (qrcode, phone, cookie)")
	fl.StringVar(&f.SaveOption, "save", "json", "save option (json, csv, db, sqlite)")
	fl.IntVar(&f.StartPage, "start-page", 1, "first result page")
	fl.IntVar(&f.CrawlCount, "count", 0, "max items to crawl; 0 keeps the crawler default")
	fl.BoolVar(&f.Headless, "headless", false, "run the browser headless")
	fl.StringVar(&f.ClientJobID, "job-id", "", "caller supplied job id")
	if err := cmd.MarkFlagRequired("platform"); err != nil {
		panic(err)
	}
	return cmd
}

func createCrawlerLogsCommand(global *GlobalFlags) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent crawler output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&command{global: global, out: cmd.OutOrStdout()}).CrawlerLogs(*f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "number of entries")
	return cmd
}

func createLoginCommand(global *GlobalFlags) *cobra.Command {
	var account string
	var interval, wait time.Duration
	cmd := &cobra.Command{
		Use:   "login <platform>",
		Short: "Run a platform login flow and follow its progress",
		Long: `Start a login session on the daemon and print its messages until it
succeeds, fails or the wait expires (the session is then cancelled).

Examples:
  crawlpost login douyin --account=shop1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (&command{global: global, out: cmd.OutOrStdout()}).Login(args[0], account, interval, wait)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account name (default: generated)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "give up after this long")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
