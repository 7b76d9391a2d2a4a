/**
 * @description
 * This is the main entry point for the esign-service. It loads configuration,
 * constructs the e-signature provider client and the mail client, wires them
 * into the application service and HTTP router, and runs the server with
 * graceful shutdown.
 *
 * @dependencies
 * - log, net/http, os/signal: Standard Go libraries.
 * - github.com/joho/godotenv: optional .env loading for local development.
 * - internal/api, internal/app, internal/config: Internal packages.
 * - pkg/esignclient, pkg/mailer: External provider clients.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/leadingpeers/esign-service/internal/api"
	"github.com/leadingpeers/esign-service/internal/app"
	"github.com/leadingpeers/esign-service/internal/config"
	"github.com/leadingpeers/esign-service/pkg/esignclient"
	"github.com/leadingpeers/esign-service/pkg/mailer"
)

// esignOpener adapts the concrete client to the app.SessionOpener seam.
type esignOpener struct {
	client *esignclient.Client
}

func (o esignOpener) OpenSession(ctx context.Context) (app.EsignSession, error) {
	return o.client.OpenSession(ctx)
}

func main() {
	// Load a local .env if present; in deployed environments everything comes
	// from real environment variables.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config incomplete\" err=%v", err)
	}

	privateKey, err := esignclient.ParsePrivateKey(cfg.DocusignPrivateKey)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"private key parse failed\" err=%v", err)
	}

	esignClient := esignclient.NewClient(esignclient.Config{
		AuthBaseURL:       cfg.AuthBaseURL(),
		DefaultAPIBaseURL: cfg.DefaultAPIBaseURL(),
		ClientID:          cfg.DocusignClientID,
		UserID:            cfg.DocusignUserID,
		PrivateKey:        privateKey,
		TemplateID:        cfg.DocusignTemplateID,
		RoleName:          cfg.DocusignRoleName,
		ClientUserID:      cfg.DocusignClientUserID,
		ReturnURL:         cfg.SigningReturnURL,
	})

	mailClient := mailer.New(cfg.SendgridAPIKey, cfg.EmailSender, cfg.EmailSubject)

	service := app.NewService(esignOpener{client: esignClient}, mailClient)
	handlers := api.NewHandlers(service)
	router := api.Routes(handlers, cfg.AllowedOrigin)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=bootstrap msg=\"starting esign-service\" addr=%s environment=%s", serverAddr, cfg.DocusignEnvironment)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
