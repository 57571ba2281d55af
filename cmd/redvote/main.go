package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"redvote/internal/config"
	"redvote/internal/model"
	"redvote/internal/server"
	"redvote/internal/store"
	"redvote/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	cfg        *config.Config
	configPath string
	redisAddr  string
	badgerPath string

	page      int
	order     string
	addGroups []string
	remGroups []string
)

var rootCmd = &cobra.Command{
	Use:   "redvote",
	Short: "redvote - article posting and voting on Redis",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("redis") {
			cfg.Redis.Addr = redisAddr
		}
		if cmd.Flags().Changed("badger") {
			cfg.Badger.Path = badgerPath
		}

		if cfg.Log.Development {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API and the snapshot worker",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		st, err := store.NewRedisStore(cfg.RedisOptions(), cfg.Snapshots.Enabled)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		archivePath := cfg.Badger.Path
		if !cfg.Snapshots.Enabled {
			archivePath = ""
		}
		archive, err := store.OpenArchive(archivePath, logger)
		if err != nil {
			logger.Fatal("Failed to open archive", zap.Error(err))
		}
		defer archive.Close()

		if cfg.Snapshots.Enabled {
			w := worker.NewWorker(st, st, archive, logger.Named("worker"), cfg.FetchTimeout())
			go w.Start(ctx)
		}

		srv := server.NewServer(st, archive, logger.Named("http"))
		go func() {
			if err := srv.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Web server failed", zap.Error(err))
				cancel()
			}
		}()

		<-ctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown failed", zap.Error(err))
		}
		logger.Info("Goodbye!")
	},
}

var postCmd = &cobra.Command{
	Use:   "post [user] [title] [link]",
	Short: "Post a new article",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		st := openStore()
		defer st.Close()

		id, err := st.Post(context.Background(), args[0], args[1], args[2])
		if err != nil {
			logger.Fatal("Failed to post article", zap.Error(err))
		}
		logger.Info("Article posted", zap.Uint64("id", id), zap.String("key", model.ArticleKey(id)))
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote [user] [article-id]",
	Short: "Vote for an article",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[1])
		st := openStore()
		defer st.Close()

		voted, err := st.Vote(context.Background(), args[0], model.ArticleKey(id))
		if err != nil {
			logger.Fatal("Failed to vote", zap.Error(err))
		}
		if voted {
			logger.Info("Vote recorded", zap.Uint64("id", id))
		} else {
			logger.Info("Vote not counted: already voted or voting closed", zap.Uint64("id", id))
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles by score or time",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		o := parseOrder()
		st := openStore()
		defer st.Close()

		articles, err := st.List(context.Background(), page, o)
		if err != nil {
			logger.Fatal("Failed to list articles", zap.Error(err))
		}
		printJSON(articles)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [article-id]",
	Short: "Show a single article",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		st := openStore()
		defer st.Close()

		article, err := st.Get(context.Background(), id)
		if err != nil {
			logger.Fatal("Failed to get article", zap.Error(err))
		}
		printJSON(article)
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups [article-id]",
	Short: "Add an article to groups or remove it from them",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		st := openStore()
		defer st.Close()

		if _, err := st.SetGroups(context.Background(), id, addGroups, remGroups); err != nil {
			logger.Fatal("Failed to update groups", zap.Error(err))
		}
		logger.Info("Groups updated",
			zap.Uint64("id", id),
			zap.Strings("added", addGroups),
			zap.Strings("removed", remGroups))
	},
}

var groupCmd = &cobra.Command{
	Use:   "group [name]",
	Short: "List the articles of a group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		o := parseOrder()
		st := openStore()
		defer st.Close()

		articles, err := st.ListGroup(context.Background(), args[0], page, o)
		if err != nil {
			logger.Fatal("Failed to list group", zap.Error(err))
		}
		printJSON(articles)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [article-id]",
	Short: "Print the stored snapshot of an article's link",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		archive, err := store.OpenArchive(cfg.Badger.Path, logger)
		if err != nil {
			logger.Fatal("Failed to open archive", zap.Error(err))
		}
		defer archive.Close()

		snap, err := archive.Snapshot(context.Background(), id)
		if err != nil {
			logger.Fatal("Failed to read snapshot", zap.Error(err))
		}
		printJSON(snap)
	},
}

// openStore connects to Redis. New posts are queued for snapshots only when
// they are enabled in the config.
func openStore() *store.RedisStore {
	st, err := store.NewRedisStore(cfg.RedisOptions(), cfg.Snapshots.Enabled)
	if err != nil {
		logger.Fatal("Failed to init store", zap.Error(err))
	}
	return st
}

func parseID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		// Accept the full key form as well.
		if id, err = model.ParseArticleKey(s); err != nil {
			logger.Fatal("Invalid article id", zap.String("id", s))
		}
	}
	return id
}

func parseOrder() model.Order {
	o, ok := model.ParseOrder(order)
	if !ok {
		logger.Fatal("Invalid order", zap.String("order", order))
	}
	return o
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Fatal("Failed to encode output", zap.Error(err))
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory")

	for _, c := range []*cobra.Command{listCmd, groupCmd} {
		c.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
		c.Flags().StringVar(&order, "order", "score", "Ranking order: score or time")
	}
	groupsCmd.Flags().StringSliceVar(&addGroups, "add", nil, "Groups to add the article to")
	groupsCmd.Flags().StringSliceVar(&remGroups, "remove", nil, "Groups to remove the article from")

	rootCmd.AddCommand(serverCmd, postCmd, voteCmd, listCmd, showCmd, groupsCmd, groupCmd, snapshotCmd)

	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
