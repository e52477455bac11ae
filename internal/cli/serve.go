package cli

import (
	"aceinterview/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP practice gateway",
	Long: `Start an HTTP server that runs practice sessions against the interview backend.

Available endpoints:
- GET /api/catalog: Domains, levels, companies and interview types
- POST /api/sessions: Start a practice session
- POST /api/sessions/{id}/resume: Upload a resume
- POST /api/sessions/{id}/questions: Generate questions
- POST /api/sessions/{id}/answers: Answer the current question
- GET /api/sessions/{id}/results: Scores and feedback
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringSlice("api-key", nil, "API key accepted by /api (repeatable, overrides config)")
}

// applyServeFlags copies the flags the user set over the loaded configuration
func applyServeFlags(cmd *cobra.Command, srv *server.ServerConfig) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		port, err := flags.GetString("port")
		if err != nil {
			return err
		}
		srv.Port = port
	}
	if flags.Changed("host") {
		host, err := flags.GetString("host")
		if err != nil {
			return err
		}
		srv.Host = host
	}
	if flags.Changed("api-key") {
		keys, err := flags.GetStringSlice("api-key")
		if err != nil {
			return err
		}
		srv.APIKeys = keys
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	serverCfg := server.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        Version,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.App.MaxFileSize + 64*1024,
		RateLimit:      &cfg.Server.RateLimit,
	}
	if err := applyServeFlags(cmd, &serverCfg); err != nil {
		return err
	}

	return server.NewServer(cfg, serverCfg, logger).Start()
}
