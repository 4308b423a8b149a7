package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sierrachat/client/internal/chat"
	"github.com/sierrachat/client/internal/config"
	"github.com/sierrachat/client/internal/localapi"
	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/realtime"
	"github.com/sierrachat/client/internal/rest"
	"github.com/sierrachat/client/internal/session"
	"github.com/sierrachat/client/internal/startup"
	"github.com/sierrachat/client/internal/storage"
	filestorage "github.com/sierrachat/client/internal/storage/file"
	"github.com/sierrachat/client/internal/storage/memory"
)

const snapshotInterval = 30 * time.Second

func main() {
	logger.SetPrefix("daemon")
	logger.Info("starting sync daemon")
	cfg := config.Load()

	store := openStore(cfg)
	defer store.Close()

	sess := session.New(store)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	token, err := sess.RestoreToken(ctx)
	cancel()
	if err != nil {
		logger.Errorf("restore token: %v", err)
		os.Exit(1)
	}
	if token == "" {
		token = os.Getenv("SIERRA_TOKEN")
	}
	if token == "" {
		// Not an error: this is the unauthenticated state. The daemon has no
		// login flow; obtain a token with the app and hand it over.
		logger.Error("no session token; set SIERRA_TOKEN or token_path")
		os.Exit(1)
	}

	restc := rest.NewClient(cfg.BackendURL, cfg.HTTPTimeout, sess)

	ctx, cancel = context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	user, err := fetchProfile(ctx, restc, sess, token)
	cancel()
	if err != nil {
		if errors.Is(err, rest.ErrUnauthorized) {
			logger.Error("session token rejected, log in again")
		} else {
			logger.Errorf("fetch profile: %v", err)
		}
		os.Exit(1)
	}
	logger.Infof("authenticated as %s (%s)", user.Username, user.ID)

	loc := loadLocation(cfg.DisplayTimezone)
	index := chat.NewConversationIndex(user.ID, restc)
	threads := chat.NewThreadManager(user.ID, restc, loc)

	// A cached snapshot renders the conversation list before the first seed.
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if snap, err := store.LoadSnapshot(ctx, user.ID); err != nil {
		logger.Errorf("load snapshot: %v", err)
	} else if len(snap) > 0 {
		index.Restore(snap)
		logger.Infof("restored %d conversations from snapshot", len(snap))
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	channel, err := realtime.Dial(ctx, realtime.Options{
		URL:            cfg.SocketURL,
		Token:          token,
		WriteTimeout:   time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongTimeout:    time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
		SendBufferSize: cfg.WSSendBufferSize,
		OnDisconnect: func(err error) {
			logger.Errorf("realtime connection lost: %v", err)
		},
	})
	cancel()
	if err != nil {
		logger.Errorf("realtime dial: %v", err)
		os.Exit(1)
	}

	chCtx, chCancel := context.WithCancel(context.Background())
	channel.Start(chCtx, chCancel)
	channel.JoinRoom(user.ID)

	// The index sees every event; threads only their own counterpart.
	unsubIndex := channel.Subscribe("index", func(ev realtime.MessageEvent) {
		counterpartID, known := index.ApplyIncoming(ev.Message)
		if !known {
			go fillProfile(restc, index, counterpartID, cfg.HTTPTimeout)
		}
	})
	unsubThreads := channel.Subscribe("threads", func(ev realtime.MessageEvent) {
		threads.HandleEvent(ev.Message, ev.ClientToken)
	})

	ctx, cancel = context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	index.Refresh(ctx)
	cancel()
	logger.Infof("seeded %d conversations", len(index.Conversations()))

	var wg sync.WaitGroup
	snapCtx, snapCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		snapshotLoop(snapCtx, store, index, user.ID)
	}()

	api := localapi.New(index, threads, sess, cfg.CORSAllowedOrigins)
	srv := &http.Server{
		Addr:         cfg.LocalAPIAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Infof("local API listening on %s", cfg.LocalAPIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("local API: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("local API shutdown: %v", err)
	}
	shutdownCancel()

	unsubIndex()
	unsubThreads()
	channel.LeaveRoom(user.ID)
	channel.Close()
	channel.Wait()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.SaveSnapshot(saveCtx, user.ID, index.Conversations()); err != nil {
		logger.Errorf("save snapshot: %v", err)
	}
	saveCancel()

	threads.Close()
	index.Close()
	snapCancel()
	wg.Wait()
	logger.Info("bye")
}

// openStore picks the state store: Redis when configured, else a token file,
// else memory only.
func openStore(cfg *config.Config) storage.Store {
	if cfg.Redis.URL != "" {
		return startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "daemon: ")
	}
	if cfg.TokenPath != "" {
		return filestorage.New(cfg.TokenPath)
	}
	return memory.New()
}

func fetchProfile(ctx context.Context, restc *rest.Client, sess *session.Store, token string) (model.Identity, error) {
	// The token must be visible to the REST client before the profile call.
	if err := sess.Begin(ctx, model.Identity{}, token); err != nil {
		return model.Identity{}, err
	}
	user, err := restc.Profile(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	if err := sess.Begin(ctx, user, token); err != nil {
		return model.Identity{}, err
	}
	return user, nil
}

// fillProfile resolves the identity of a counterpart first seen through a
// streamed event. Applied to a live index only; after Close it is a no-op.
func fillProfile(restc *rest.Client, index *chat.ConversationIndex, counterpartID string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	user, err := restc.UserByID(ctx, counterpartID)
	if err != nil {
		logger.Errorf("fetch counterpart %s: %v", counterpartID, err)
		return
	}
	index.SetCounterpartProfile(user)
}

func snapshotLoop(ctx context.Context, store storage.Store, index *chat.ConversationIndex, userID string) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := store.SaveSnapshot(saveCtx, userID, index.Conversations()); err != nil {
				logger.Errorf("save snapshot: %v", err)
			}
			cancel()
		}
	}
}

func loadLocation(name string) *time.Location {
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Errorf("display timezone %q: %v (falling back to local)", name, err)
		return time.Local
	}
	return loc
}
