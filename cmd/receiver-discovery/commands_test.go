package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/receiver-discovery-go/internal/auth"
	"github.com/strefethen/receiver-discovery-go/internal/config"
)

const testSecret = "this-is-a-development-secret-string-32chars"

func writeDescription(t *testing.T, manufacturer string) string {
	t.Helper()
	description := `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <manufacturer>` + manufacturer + `</manufacturer>
    <modelName>RX-V685</modelName>
    <UDN>uuid:5f9ec1b3-ed59-1900-4530-00a0ded41bb7</UDN>
  </device>
</root>`
	path := filepath.Join(t.TempDir(), "desc.xml")
	require.NoError(t, os.WriteFile(path, []byte(description), 0o644))
	return path
}

func TestRunRecognize(t *testing.T) {
	path := writeDescription(t, "Yamaha Corporation")
	var out bytes.Buffer

	err := runRecognize(config.Config{}, []string{"-file", path, "-location", "http://192.168.1.50:8080/desc.xml"}, &out)
	require.NoError(t, err)

	var registrations []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &registrations))
	require.Len(t, registrations, 1)
	assert.Equal(t, "yamahareceiver:yamahaAV:uuid:5f9ec1b3_ed59_1900_4530_00a0ded41bb7", registrations[0]["thing_uid"])
	assert.Equal(t, "Yamaha Receiver RX-V685", registrations[0]["label"])
	assert.Equal(t, map[string]any{"host": "192.168.1.50:80"}, registrations[0]["properties"])
}

func TestRunRecognize_NoMatch(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, runRecognize(config.Config{}, []string{"-file", writeDescription(t, "Sony"), "-location", "http://10.0.0.2/d.xml"}, &out))
	assert.Equal(t, "[]", strings.TrimSpace(out.String()))

	// Without a location there is no address, so nothing matches.
	out.Reset()
	require.NoError(t, runRecognize(config.Config{}, []string{"-file", writeDescription(t, "Yamaha")}, &out))
	assert.Equal(t, "[]", strings.TrimSpace(out.String()))
}

func TestRunRecognize_Errors(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, runRecognize(config.Config{}, nil, &out))
	require.Error(t, runRecognize(config.Config{}, []string{"-file", filepath.Join(t.TempDir(), "missing.xml")}, &out))
	require.Error(t, runRecognize(config.Config{}, []string{"-bogus"}, &out))
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Config{JWTSecret: testSecret, JWTAccessTokenExpirySec: 60}

	require.NoError(t, runToken(cfg, []string{"-subject", "panel"}, &out))
	payload, err := auth.VerifyToken(testSecret, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "panel", payload.Sub)

	require.Error(t, runToken(config.Config{}, []string{"-subject", "panel"}, &out))
	require.Error(t, runToken(cfg, nil, &out))
}
