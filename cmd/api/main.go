package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hodlxxi.org/internal/btcsig"
	"hodlxxi.org/internal/config"
	"hodlxxi.org/internal/httpapi"
	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/obs"
	"hodlxxi.org/internal/pof"
	"hodlxxi.org/internal/store/memory"
	"hodlxxi.org/internal/store/pg"
	"hodlxxi.org/internal/store/redis"
	"hodlxxi.org/internal/sweep"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backends bundles the store implementations selected from config.
// Postgres carries everything when a DSN is set; Redis, when
// configured, takes over the short-lived keyed records (codes,
// sessions, login and funds challenges) and leaves durable records
// (users, clients, token pairs) where they were.
type backends struct {
	users  identity.UserStore
	sess   identity.SessionStore
	client oauth.ClientStore
	codes  oauth.CodeStore
	tokens oauth.TokenStore
	login  lnurl.ChallengeStore
	funds  pof.ChallengeStore

	db      *sql.DB
	sweeps  []sweep.Target
	cleanup []func()
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer func() {
		for _, fn := range be.cleanup {
			fn()
		}
	}()

	secret := cfg.SessionSecret
	if secret == "" {
		// Validate already rejects this in production; outside it a
		// throwaway secret keeps dev setups working, at the cost of
		// invalidating web sessions across restarts.
		secret = randomSecret()
		log.Printf("HODLXXI_SESSION_SECRET not set, generated a throwaway secret")
	}

	idSvc := identity.NewService(be.users, be.sess, identity.WithSessionTTL(cfg.SessionTTL))
	issuer, err := identity.NewTokenIssuer(secret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	oauthSvc := oauth.NewService(be.client, be.codes, be.tokens,
		oauth.WithCodeTTL(cfg.CodeTTL),
		oauth.WithAccessTTL(cfg.AccessTokenTTL),
		oauth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	loginSvc := lnurl.NewService(be.login, idSvc, btcsig.LinkingKeyVerifier{},
		lnurl.WithChallengeTTL(cfg.LoginChallengeTTL))
	fundsSvc := pof.NewService(be.funds, btcsig.MessageVerifier{}, pof.ValueMap{},
		pof.WithChallengeTTL(cfg.FundsChallengeTTL))

	api := httpapi.New(cfg.BaseURL, idSvc, issuer, oauthSvc, loginSvc, fundsSvc,
		httpapi.WithVersion(version),
		httpapi.WithReadyProbe(httpapi.ReadyProbe{DB: be.db}),
	)

	if len(be.sweeps) > 0 && cfg.SweepInterval > 0 {
		go sweep.New(cfg.SweepInterval, be.sweeps).Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting hodlxxi-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	be := &backends{}

	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		be.db = pgStore.DB()
		be.cleanup = append(be.cleanup, func() { _ = be.db.Close() })

		be.users = pgStore.Users()
		be.sess = pgStore.Sessions()
		be.client = pgStore.Clients()
		be.codes = pgStore.Codes()
		be.tokens = pgStore.Tokens()
		be.login = pgStore.LoginChallenges()
		be.funds = pgStore.FundsChallenges()

		be.sweeps = []sweep.Target{
			{Name: "sessions", Delete: be.sess.DeleteExpired},
			{Name: "oauth_codes", Delete: be.codes.DeleteExpired},
			{Name: "oauth_tokens", Delete: be.tokens.DeleteExpired},
			{Name: "login_challenges", Delete: be.login.DeleteExpired},
			{Name: "funds_challenges", Delete: be.funds.DeleteExpired},
		}
	} else {
		mem := memory.New()
		be.users = mem.Users
		be.sess = mem.Sessions
		be.client = mem.Clients
		be.codes = mem.Codes
		be.tokens = mem.Tokens
		be.login = mem.LoginChallenge
		be.funds = mem.FundsChallenge

		be.sweeps = []sweep.Target{
			{Name: "sessions", Delete: mem.Sessions.DeleteExpired},
			{Name: "oauth_codes", Delete: mem.Codes.DeleteExpired},
			{Name: "oauth_tokens", Delete: mem.Tokens.DeleteExpired},
			{Name: "login_challenges", Delete: mem.LoginChallenge.DeleteExpired},
			{Name: "funds_challenges", Delete: mem.FundsChallenge.DeleteExpired},
		}
	}

	if cfg.RedisURL != "" {
		rds, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		// Short-lived records move to Redis; their TTLs make the
		// periodic sweep unnecessary, so those targets are dropped.
		be.codes = rds.Codes()
		be.sess = rds.Sessions()
		be.login = rds.LoginChallenges()
		be.funds = rds.FundsChallenges()

		kept := be.sweeps[:0]
		for _, t := range be.sweeps {
			if t.Name == "oauth_tokens" {
				kept = append(kept, t)
			}
		}
		be.sweeps = kept
	}

	return be, nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("entropy: %v", err)
	}
	return hex.EncodeToString(buf)
}
