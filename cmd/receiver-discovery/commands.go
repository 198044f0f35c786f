package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/auth"
	"github.com/strefethen/receiver-discovery-go/internal/config"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
	"github.com/strefethen/receiver-discovery-go/internal/server"
	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

// runRecognize classifies a saved device description and prints any
// registrations as JSON.
func runRecognize(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("recognize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	file := fs.String("file", "", "path to a UPnP device description XML")
	location := fs.String("location", "", "URL the description was fetched from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	payload, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	var descriptorURL *url.URL
	if *location != "" {
		descriptorURL, err = url.Parse(*location)
		if err != nil {
			return fmt.Errorf("invalid -location: %w", err)
		}
	}

	device, err := upnp.ParseDescription(payload, descriptorURL)
	if err != nil {
		return err
	}

	registry, err := server.NewRegistry(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		return err
	}
	registrations := registry.Recognize(device)
	if registrations == nil {
		registrations = []recognizer.Registration{}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(registrations)
}

// runToken mints an access token for the configured JWT secret.
func runToken(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "", "token subject")
	ttl := fs.Duration("ttl", time.Duration(cfg.JWTAccessTokenExpirySec)*time.Second, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, *subject, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
