package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	policyFile := os.Getenv("POLICY_FILE")
	if policyFile == "" {
		policyFile = "policies.yaml"
	}

	source, err := infra.NewFileSource(policyFile)
	if err != nil {
		log.Fatalf("policy source error: %v", err)
	}
	store := infra.NewConfigStore(source, infra.ValidatePolicySet)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if res := store.Reload(ctx); res.Outcome == domain.ReloadRejected {
		log.Fatalf("policy load rejected: %v", res.Err)
	}

	quotas := infra.NewQuotaStore()
	quotas.StartJanitor(ctx)

	engine := &application.Engine{
		Snapshots: store,
		Quotas:    quotas,
		Resolver:  application.NewResolver(256),
		Fallback:  infra.NewFailsafe(1, 5),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{Max: 50})(h)
	h = admission.Middleware(admission.Options{
		Engine:              engine,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TierHeader:          "X-Tier",
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
