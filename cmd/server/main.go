// Command server runs the authentication broker: it correlates asynchronous
// identity-provider callbacks with synchronously polling clients, serves the
// SAML and bearer-token surfaces, and exposes liveness and metrics.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"authbroker/internal/admintoken"
	"authbroker/internal/login"
	"authbroker/internal/login/service"
	"authbroker/internal/oauth"
	"authbroker/internal/platform/config"
	"authbroker/internal/platform/httpserver"
	"authbroker/internal/platform/logger"
	"authbroker/internal/platform/metrics"
	"authbroker/internal/platform/redis"
	"authbroker/internal/saml"
	"authbroker/internal/store"
	httptransport "authbroker/internal/transport/http"
)

const (
	requestTTL = 10 * time.Minute
	profileTTL = time.Hour
)

func main() {
	settings := config.NewEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(settings, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(settings config.Settings, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.New(settings.Get(config.RedisURL))
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokenTTL := time.Duration(settings.GetInt(config.TokenTTL, admintoken.DefaultTTLSeconds)) * time.Second
	requests, profiles, secrets := buildStores(redisClient, tokenTTL)

	correlator := service.New(
		login.NewRequestRegistry(requests),
		login.NewProfileRegistry(profiles),
	)
	tokens := admintoken.New(secrets, settings)

	verifier, err := oauth.New(ctx, settings)
	if err != nil {
		return fmt.Errorf("build token verifier: %w", err)
	}

	engine, err := buildSamlEngine(settings, log)
	if err != nil {
		return fmt.Errorf("build saml engine: %w", err)
	}

	handler := httptransport.NewHandler(
		log, settings, correlator, engine, verifier, tokens, redisClient, metrics.New(),
	)

	addr := fmt.Sprintf(":%d", settings.GetInt(config.Port, 3000))
	srv := httpserver.New(addr, handler.Router())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting authentication broker",
			"addr", addr,
			"store", storeKind(redisClient),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// buildStores selects the backing store per record type. With REDIS_URL set
// the registries are shared across replicas; otherwise each process keeps
// its own in-memory copies.
func buildStores(client *redis.Client, tokenTTL time.Duration) (requests, profiles, secrets store.KeyValue) {
	if client != nil {
		return store.NewRedis(client.Client, "req", requestTTL),
			store.NewRedis(client.Client, "user", profileTTL),
			store.NewRedis(client.Client, "token", tokenTTL)
	}
	return store.NewMemory(requestTTL),
		store.NewMemory(profileTTL),
		store.NewMemory(tokenTTL)
}

func storeKind(client *redis.Client) string {
	if client != nil {
		return "redis"
	}
	return "memory"
}

// buildSamlEngine loads the signing credentials and provider directory. When
// no credentials are configured an ephemeral self-signed pair is generated
// so development setups work out of the box; assertions then only validate
// within the same process lifetime.
func buildSamlEngine(settings config.Settings, log *slog.Logger) (*saml.Engine, error) {
	directory, err := saml.LoadDirectory(settings.Get(config.IdpConfFile))
	if err != nil {
		return nil, err
	}

	keyPath := settings.Get(config.KeyFile)
	certPath := settings.Get(config.CertFile)

	var keyPEM, certPEM string
	if keyPath != "" && certPath != "" {
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		certData, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("read certificate: %w", err)
		}
		keyPEM, certPEM = string(keyData), string(certData)
	} else {
		log.Warn("no signing credentials configured, generating ephemeral pair")
		keyPEM, certPEM, err = generateCredentials()
		if err != nil {
			return nil, err
		}
	}

	return saml.NewEngine(settings, keyPEM, certPEM, directory)
}

func generateCredentials() (keyPEM, certPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "authbroker"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("self-sign certificate: %w", err)
	}
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}))
	return keyPEM, certPEM, nil
}
