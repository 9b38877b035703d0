package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/garage44/codebrew-sub002/internal/api"
	"github.com/garage44/codebrew-sub002/internal/api/handlers"
	"github.com/garage44/codebrew-sub002/internal/config"
	"github.com/garage44/codebrew-sub002/internal/realtime"
	"github.com/garage44/codebrew-sub002/internal/service"
	"github.com/garage44/codebrew-sub002/internal/storage"
	"github.com/garage44/codebrew-sub002/internal/storage/repos"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "relayd",
		Short:         "Realtime websocket broadcast server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newCallCommand())
	root.AddCommand(newWatchCommand())
	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	store := repos.New(db)
	app := service.New(cfg, store)

	janitor := service.NewJanitor(app)
	if err := janitor.Register(); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	server := handlers.New(app, cfg)
	srv := &http.Server{
		Addr:         config.Addr(cfg),
		Handler:      api.NewRouter(server, app),
		ReadTimeout:  config.ReadTimeout(cfg),
		WriteTimeout: config.WriteTimeout(cfg),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("relayd listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCallCommand() *cobra.Command {
	var url string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call METHOD PATH [BODY]",
		Short: "Send a single request over the websocket and print the response",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if len(args) == 3 {
				if err := json.Unmarshal([]byte(args[2]), &body); err != nil {
					return fmt.Errorf("body must be valid JSON: %w", err)
				}
			}
			client, err := realtime.Dial(cmd.Context(), url, realtime.ClientOptions{CallTimeout: timeout})
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.Call(cmd.Context(), args[0], args[1], body)
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/api/v1/ws", "websocket endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "watch TOPIC...",
		Short: "Subscribe to topics and stream their events to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := realtime.Dial(cmd.Context(), url, realtime.ClientOptions{})
			if err != nil {
				return err
			}
			defer client.Close()

			for _, topic := range args {
				if err := client.Subscribe(cmd.Context(), topic); err != nil {
					return fmt.Errorf("subscribe %s: %w", topic, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscribed to %s\n", topic)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			for {
				select {
				case <-sigCh:
					return nil
				case <-cmd.Context().Done():
					return nil
				case env, ok := <-client.Events():
					if !ok {
						return errors.New("connection closed")
					}
					if err := printJSON(cmd, env); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/api/v1/ws", "websocket endpoint")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
