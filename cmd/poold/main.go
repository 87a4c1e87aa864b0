// main.go - poold: controller and prover daemons for the privacy pool
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"privacypool/internal/api"
	"privacypool/internal/commitment"
	"privacypool/internal/gnarkprover"
	"privacypool/internal/keystore"
	"privacypool/internal/operation"
	"privacypool/internal/poolclient"
	"privacypool/internal/proof"
	"privacypool/internal/session"
	"privacypool/internal/storage"
	"privacypool/internal/wallet"
	"privacypool/internal/witness"
	"privacypool/p2p"
)

const version = "0.3.0"

var (
	configPath string
	envPath    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poold",
		Short:        "Privacy pool operation store and proof orchestration",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "poold.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "optional dotenv file")

	root.AddCommand(newControllerCmd(), newProverCmd(), newKeystoreCmd(), newArtifactsCmd())
	return root
}

// setup loads configuration and opens the logger shared by every command.
func setup() (*Config, *Logger, error) {
	if err := LoadEnv(envPath); err != nil {
		return nil, nil, err
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := NewLogger(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.AuditFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newControllerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "controller",
		Short: "Run the operation store and proof controller API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runController(ctx, cfg, logger)
		},
	}
}

func runController(ctx context.Context, cfg *Config, logger *Logger) error {
	log := logger.Logger

	kv, err := storage.OpenLevelDB(cfg.Controller.StorePath)
	if err != nil {
		return fmt.Errorf("open operation store: %w", err)
	}
	defer kv.Close()

	sess := session.New()
	store := operation.NewStore(kv, log)
	w := wallet.New(sess, store, commitment.NewEngine(commitment.Poseidon{}), log)

	dialer := p2p.NewDialer("controller", p2p.ChannelURL(cfg.Controller.ProverURL),
		cfg.Controller.DialInterval, cfg.Controller.DialAttempts, log)
	ctrl := proof.NewController(w, dialer, proof.Config{
		NodeID:          "controller",
		ApprovalTimeout: cfg.Controller.ApprovalTimeout,
		ProofTimeout:    cfg.Controller.ProofTimeout,
	}, log, proof.WithAuditor(logger))
	defer ctrl.Close()
	sess.OnLock(ctrl.Reset)

	pool := poolclient.NewClient(cfg.PoolService.BaseURL, cfg.PoolService.Timeout, log)

	limiter := NewClientRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(api.Deps{
		Session:      sess,
		Wallet:       w,
		Proofs:       ctrl,
		Pool:         pool,
		KeystorePath: cfg.Controller.KeystorePath,
		Auditor:      logger,
	}, log, limiter.Middleware())

	health := NewHealthChecker(version, 3*time.Second)
	health.RegisterComponent("operation_store", true, func(context.Context) error { return store.Ping() })
	health.RegisterComponent("prover", false, dialer.Ping)
	health.RegisterComponent("pool_service", false, pool.Ping)
	srv.Engine().GET("/health", health.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Controller.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Sweep(10 * time.Minute)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Controller.ListenAddr).Str("prover", dialer.URL).Msg("controller listening")
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Audit("controller_started", map[string]interface{}{"addr": cfg.Controller.ListenAddr, "version": version})

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("controller server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess.Lock()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Audit("controller_stopped", nil)
	return nil
}

func newProverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prover",
		Short: "Run the proof generation node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProver(ctx, cfg, logger)
		},
	}
}

func runProver(ctx context.Context, cfg *Config, logger *Logger) error {
	log := logger.Logger

	backend := gnarkprover.NewBackend(cfg.Prover.KeyDir, log)
	runtime := proof.NewRuntime(backend.Setup)
	engine := commitment.NewEngine(commitment.Poseidon{})
	prover := proof.NewProver("prover", backend, gnarkprover.Encoder{},
		proof.NewHTTPArtifacts(cfg.Prover.ArtifactTimeout, cfg.Prover.ArtifactDir),
		runtime, witness.NewAssembler(engine.Hasher()), log)

	node := p2p.NewNode("prover", cfg.Prover.ListenAddr, log)
	prover.Register(node)

	// Warm the backend so the first request does not pay for key setup.
	go func() {
		if err := runtime.Ensure(ctx); err != nil {
			log.Warn().Err(err).Msg("backend warm-up failed, retrying on first request")
		}
	}()

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- node.StartServer(ready) }()

	select {
	case <-ready:
		log.Info().Str("addr", node.Addr()).Str("path", p2p.ChannelPath).Msg("prover listening")
	case err := <-errCh:
		return fmt.Errorf("prover server: %w", err)
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("prover server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return node.Shutdown(shutdownCtx)
}

func newKeystoreCmd() *cobra.Command {
	ks := &cobra.Command{
		Use:   "keystore",
		Short: "Manage the encrypted seed keystore",
	}

	var seed, password string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Encrypt a seed into the configured keystore path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			if password == "" {
				password = os.Getenv("POOLD_KEYSTORE_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("a password is required (--password or POOLD_KEYSTORE_PASSWORD)")
			}
			path := cfg.Controller.KeystorePath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("keystore %s already exists, use --force to overwrite", path)
			}
			if seed == "" {
				buf := make([]byte, 31)
				if _, err := rand.Read(buf); err != nil {
					return fmt.Errorf("generate seed: %w", err)
				}
				seed = "0x" + hex.EncodeToString(buf)
				fmt.Fprintf(cmd.OutOrStdout(), "generated seed %s\n", seed)
			}

			k, err := keystore.Encrypt(seed, password)
			if err != nil {
				return err
			}
			if err := k.Save(path); err != nil {
				return err
			}
			logger.Audit("keystore_created", map[string]interface{}{"path": path})
			fmt.Fprintf(cmd.OutOrStdout(), "keystore written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&seed, "seed", "", "seed as hex (random when empty)")
	initCmd.Flags().StringVar(&password, "password", "", "keystore password")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")

	var check string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the encrypted keystore, optionally checking a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			k, err := keystore.Load(cfg.Controller.KeystorePath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:  %s\n", cfg.Controller.KeystorePath)
			fmt.Fprintf(out, "salt:  %s\n", hex.EncodeToString(k.Salt))
			fmt.Fprintf(out, "iv:    %s\n", hex.EncodeToString(k.IV))
			fmt.Fprintf(out, "bytes: %d\n", len(k.EncryptedSeed))
			if check != "" {
				if _, err := k.Decrypt(check); err != nil {
					return err
				}
				fmt.Fprintln(out, "password: ok")
			}
			return nil
		},
	}
	showCmd.Flags().StringVar(&check, "check", "", "password to verify against the keystore")

	ks.AddCommand(initCmd, showCmd)
	return ks
}

func newArtifactsCmd() *cobra.Command {
	arts := &cobra.Command{
		Use:   "artifacts",
		Short: "Circuit artifact management",
	}

	var outDir string
	export := &cobra.Command{
		Use:   "export",
		Short: "Set up the circuit keys and write the program and verifying key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			backend := gnarkprover.NewBackend(cfg.Prover.KeyDir, logger.Logger)
			if err := backend.Setup(cmd.Context()); err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Prover.ArtifactDir
			}
			if outDir == "" {
				return fmt.Errorf("no output directory: pass --out or set prover.artifact_dir")
			}
			dir, err := filepath.Abs(outDir)
			if err != nil {
				return err
			}
			a, err := backend.ExportArtifacts(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "jsonUrl: file://%s\nvkUrl:   file://%s\n", a.ProgramPath, a.VKPath)
			return nil
		},
	}
	export.Flags().StringVar(&outDir, "out", "", "output directory (defaults to prover.artifact_dir)")

	arts.AddCommand(export)
	return arts
}
