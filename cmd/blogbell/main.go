// Command blogbell is the terminal notification client.
//
// Usage:
//
//	blogbell [-config path]            run the notification panel
//	blogbell login [-config path]      store a session token
//	blogbell logout                    remove the stored token
//	blogbell digest -to addr [-limit]  print unread notifications as an email
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/api"
	"github.com/nhle/blogbell/internal/app"
	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/digest"
	"github.com/nhle/blogbell/internal/logging"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/ui/login"
)

func main() {
	args := os.Args[1:]
	sub := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	var err error
	switch sub {
	case "":
		err = runUI(args)
	case "login":
		err = runLogin(args)
	case "logout":
		err = runLogout(args)
	case "digest":
		err = runDigest(args)
	default:
		err = fmt.Errorf("unknown command %q", sub)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "blogbell: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs.
type env struct {
	cfg     *model.AppConfig
	cfgPath string
	ring    *credential.Ring
	logger  *zap.SugaredLogger
}

func setup(name string, args []string, extra func(*flag.FlagSet)) (*env, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", model.DefaultConfigPath(), "path to config.yaml")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := model.LoadConfig(*cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File, false)
	if err != nil {
		return nil, err
	}

	ring, err := credential.Open()
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, cfgPath: *cfgPath, ring: ring, logger: logger}, nil
}

func runUI(args []string) error {
	e, err := setup("blogbell", args, nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	e.logger.Infow("starting client", "server", e.cfg.Server.BaseURL)
	m := app.New(app.Options{
		Config:     e.cfg,
		ConfigPath: e.cfgPath,
		Ring:       e.ring,
		Logger:     e.logger,
	})

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func runLogin(args []string) error {
	e, err := setup("login", args, nil)
	if err != nil {
		return err
	}

	v := login.Values{BaseURL: e.cfg.Server.BaseURL}
	if err := login.NewForm(&v, time.Now).Run(); err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}

	if err := e.ring.Set(credential.SessionTokenKey, strings.TrimSpace(v.Token)); err != nil {
		return err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(v.BaseURL), "/")
	if baseURL != e.cfg.Server.BaseURL {
		e.cfg.Server.BaseURL = baseURL
		if err := model.SaveConfig(e.cfgPath, e.cfg); err != nil {
			return err
		}
	}

	fmt.Println("Signed in.")
	return nil
}

func runLogout(args []string) error {
	e, err := setup("logout", args, nil)
	if err != nil {
		return err
	}

	if err := e.ring.Delete(credential.SessionTokenKey); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func runDigest(args []string) error {
	var to, from string
	var limit int
	e, err := setup("digest", args, func(fs *flag.FlagSet) {
		fs.StringVar(&to, "to", "", "recipient address (required)")
		fs.StringVar(&from, "from", digest.DefaultFrom, "sender address")
		fs.IntVar(&limit, "limit", 50, "number of recent notifications to consider")
	})
	if err != nil {
		return err
	}
	if to == "" {
		return errors.New("digest: -to is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := api.NewClient(e.cfg.Server.BaseURL, credential.NewKeyringProvider(e.ring), e.logger.Named("api"))
	page, err := client.FetchPage(ctx, limit, 0)
	if err != nil {
		if errors.Is(err, api.ErrNoCredential) {
			return errors.New("not signed in; run `blogbell login` first")
		}
		return err
	}

	return digest.Write(os.Stdout, page.Items, digest.Options{From: from, To: to})
}
