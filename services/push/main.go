// Web Push delivery service: subscriptions in Redis (or memory with -dev),
// delivery via VAPID.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/push"
	"github.com/campuslink/internal/startup"
	"github.com/campuslink/internal/storage"
	"github.com/campuslink/internal/storage/memory"
)

type Config struct {
	ServerAddr      string
	RedisURL        string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:      getEnv("SERVER_ADDR", ":8082"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type Server struct {
	cfg   *Config
	store storage.SubscriptionStore
	vapid *webpush.Options
}

func main() {
	logger.SetPrefix("push")
	genVAPID := flag.Bool("gen-vapid", false, "print a fresh VAPID key pair and exit")
	dev := flag.Bool("dev", false, "keep subscriptions in memory (no Redis required)")
	flag.Parse()

	if *genVAPID {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		return
	}

	logger.Info("starting push service")
	cfg := loadConfig()
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		keys, err := push.EnsureVAPIDKeys("")
		if err == nil {
			cfg.VAPIDPublicKey = keys.PublicKey
			cfg.VAPIDPrivateKey = keys.PrivateKey
		} else {
			logger.Infof("VAPID: could not load or generate keys: %v (push delivery disabled)", err)
		}
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		logger.Info("VAPID keys not set: subscriptions are stored but nothing is delivered")
	}

	var store storage.SubscriptionStore
	if *dev {
		store = memory.New()
		logger.Info("subscription store: in-memory (-dev)")
	} else {
		store = startup.ConnectRedisWithRetry(cfg.RedisURL, 60*time.Second, "")
		logger.Info("redis connected")
	}
	defer store.Close()

	var vapidOpts *webpush.Options
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		vapidOpts = &webpush.Options{
			Subscriber:      "campuslink-push",
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             30,
		}
	}
	s := &Server{cfg: cfg, store: store, vapid: vapidOpts}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/vapid-public", s.handleVAPIDPublic)
	r.Route("/api", func(r chi.Router) {
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/notify", s.handleNotify)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("push server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("push server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}

func (s *Server) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.cfg.VAPIDPublicKey == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.cfg.VAPIDPublicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req push.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		http.Error(w, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	sub := storage.Subscription{Endpoint: req.Subscription.Endpoint}
	sub.Keys.P256dh = req.Subscription.Keys.P256dh
	sub.Keys.Auth = req.Subscription.Keys.Auth
	if err := s.store.AddSubscription(r.Context(), req.UserID, sub); err != nil {
		logger.Errorf("subscribe: %v", err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Endpoint == "" {
		http.Error(w, "user_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.store.RemoveSubscription(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("unsubscribe: %v", err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req push.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	subs, err := s.store.ListSubscriptions(ctx, req.UserID)
	if err != nil {
		logger.Errorf("notify: %v", err)
		http.Error(w, "failed to get subscriptions", http.StatusInternalServerError)
		return
	}
	if s.vapid == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	payload := map[string]interface{}{"title": req.Title, "body": req.Body, "data": req.Data}
	payloadBytes, _ := json.Marshal(payload)
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("send %s: %v", sub.Endpoint[:min(50, len(sub.Endpoint))], err)
			continue
		}
		resp.Body.Close()
		// 410/404 means the endpoint is gone; forget it.
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := s.store.RemoveSubscription(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("remove stale subscription: %v", err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
