package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/config"
	"github.com/bluevia-go/bluevia/internal/mmsbody"
	"github.com/bluevia-go/bluevia/internal/store"
	"github.com/bluevia-go/bluevia/internal/testutil"
)

// resetFlags puts every flag of cmd and its subcommands back to its default
// so flags set by one test do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace([]string{})
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// captureStdout captures stdout output from the given function.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(r)
		done <- data
	}()

	fn()

	w.Close()
	os.Stdout = old
	out := <-done
	r.Close()
	return string(out)
}

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })
	var err error
	out := captureStdout(t, func() {
		rootCmd.SetArgs(args)
		err = rootCmd.Execute()
	})
	return out, err
}

// inTempDir runs the test from an empty directory so the default
// bluevia.toml and bluevia.db land there.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

// writeConfig writes a bluevia.toml pointing the API at baseURL and the store
// into dir.
func writeConfig(t *testing.T, dir, baseURL, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`[api]
client_id = "app-id"
client_secret = "app-secret"
access_token = "tok-0123456789"
base_url = %q

[store]
path = %q
%s`, baseURL, filepath.Join(dir, "messages.db"), extra)
	return testutil.WriteFile(t, filepath.Join(dir, "bluevia.toml"), content)
}

func listMessages(t *testing.T, cfgPath string) []store.Message {
	t.Helper()
	out, err := run(t, "messages", "list", "--config", cfgPath, "--json")
	testutil.NoError(t, err)
	var msgs []store.Message
	testutil.NoError(t, json.Unmarshal([]byte(out), &msgs))
	return msgs
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "none", "unknown")
	testutil.Equal(t, "1.2.3", buildVersion)
	testutil.Equal(t, "abc123", buildCommit)
	testutil.Equal(t, "2026-01-01", buildDate)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("0.1.0", "deadbeef", "2026-02-07")
	defer SetVersion("dev", "none", "unknown")

	out, err := run(t, "version")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "bluevia 0.1.0")
	testutil.Contains(t, out, "deadbeef")

	out, err = run(t, "version", "--json")
	testutil.NoError(t, err)
	var v map[string]string
	testutil.NoError(t, json.Unmarshal([]byte(out), &v))
	testutil.Equal(t, "0.1.0", v["version"])
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	commands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		commands[cmd.Name()] = true
	}
	for _, name := range []string{"version", "config", "auth", "sms", "mms", "inbox", "listen", "messages", "mcp"} {
		testutil.True(t, commands[name], "missing command "+name)
	}
}

func TestEveryTopLevelCommandHasAGroup(t *testing.T) {
	for _, cmd := range rootCmd.Commands() {
		if cmd.IsAvailableCommand() && cmd.Name() != "help" && cmd.Name() != "completion" {
			testutil.True(t, cmd.GroupID != "", cmd.Name()+" has no help group")
		}
	}
}

func TestHelpShowsGroups(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetErr(&buf)
	defer rootCmd.SetErr(nil)

	_, err := run(t, "--help")
	testutil.NoError(t, err)
	out := buf.String()
	testutil.Contains(t, out, "BlueVia")
	testutil.Contains(t, out, "MESSAGING")
	testutil.Contains(t, out, "NOTIFICATIONS")
	testutil.Contains(t, out, "SETUP")
	testutil.False(t, strings.Contains(out, "DEMOS"))
}

func TestConfigCommandProducesValidTOML(t *testing.T) {
	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, "https://api.example.com", "")

	out, err := run(t, "config", "--config", cfgPath)
	testutil.NoError(t, err)

	var parsed map[string]any
	if err := toml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("config output is not valid TOML: %v\noutput:\n%s", err, out)
	}
	_, ok := parsed["api"]
	testutil.True(t, ok, "expected api section")
	_, ok = parsed["server"]
	testutil.True(t, ok, "expected server section")
	testutil.False(t, strings.Contains(out, "tok-0123456789"), "access token printed in full")
	testutil.False(t, strings.Contains(out, "app-secret"), "client secret printed in full")
}

func TestConfigCommandJSON(t *testing.T) {
	inTempDir(t)
	out, err := run(t, "config", "--json")
	testutil.NoError(t, err)
	var parsed map[string]any
	testutil.NoError(t, json.Unmarshal([]byte(out), &parsed))
	_, ok := parsed["API"]
	testutil.True(t, ok, "expected API key")
}

func TestConfigInit(t *testing.T) {
	dir := inTempDir(t)

	_, err := run(t, "config", "init")
	testutil.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, config.DefaultPath))
	testutil.NoError(t, err)

	_, err = run(t, "config", "init")
	testutil.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", "--force")
	testutil.NoError(t, err)
}

func TestConfigSetAndGet(t *testing.T) {
	inTempDir(t)

	out, err := run(t, "config", "set", "server.port", "9000")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "server.port = 9000")

	out, err = run(t, "config", "get", "server.port")
	testutil.NoError(t, err)
	testutil.Equal(t, "9000\n", out)

	out, err = run(t, "config", "set", "api.allowed_countries", "ES,GB")
	testutil.NoError(t, err)
	out, err = run(t, "config", "get", "api.allowed_countries")
	testutil.NoError(t, err)
	testutil.Equal(t, "ES,GB\n", out)
}

func TestConfigSecretsAreMasked(t *testing.T) {
	inTempDir(t)

	out, err := run(t, "config", "set", "api.client_secret", "super-secret-value")
	testutil.NoError(t, err)
	testutil.False(t, strings.Contains(out, "super-secret-value"))

	out, err = run(t, "config", "get", "api.client_secret")
	testutil.NoError(t, err)
	testutil.Equal(t, "supe**********alue\n", out)

	out, err = run(t, "config", "get", "api.client_secret", "--reveal")
	testutil.NoError(t, err)
	testutil.Equal(t, "super-secret-value\n", out)
}

func TestConfigSetUnknownKey(t *testing.T) {
	inTempDir(t)
	_, err := run(t, "config", "set", "nonexistent.key", "value")
	testutil.ErrorContains(t, err, "unknown configuration key")
}

func TestMaskToken(t *testing.T) {
	testutil.Equal(t, "", maskToken(""))
	testutil.Equal(t, "*****", maskToken("short"))
	testutil.Equal(t, "abcd*****jklm", maskToken("abcdefghijklm"))
}

func TestMaskSecretsLeavesOriginal(t *testing.T) {
	cfg := config.Default()
	cfg.API.AccessToken = "0123456789abcdef"
	masked := maskSecrets(*cfg)
	testutil.Equal(t, "0123********cdef", masked.API.AccessToken)
	testutil.Equal(t, "0123456789abcdef", cfg.API.AccessToken)
	testutil.Equal(t, "", masked.Forward.Webhook.Secret)
}

func TestParseSlogLevel(t *testing.T) {
	testutil.Equal(t, "DEBUG", parseSlogLevel("debug").String())
	testutil.Equal(t, "WARN", parseSlogLevel("WARN").String())
	testutil.Equal(t, "ERROR", parseSlogLevel("error").String())
	testutil.Equal(t, "INFO", parseSlogLevel("bogus").String())
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	newLoggerTo(&buf, "info", "json").Info("hello", "k", "v")
	var line map[string]any
	testutil.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	testutil.Equal(t, "hello", line["msg"].(string))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	testutil.NoError(t, writeCSV(&buf, []string{"ID", "Body"}, [][]string{{"1", "hello, world"}}))
	testutil.Equal(t, "ID,Body\n1,\"hello, world\"\n", buf.String())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	writeTable(&buf, []string{"ID", "Status"}, [][]string{{"97286", "delivered"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	testutil.SliceLen(t, lines, 3)
	testutil.True(t, strings.HasPrefix(lines[0], "ID"))
	testutil.Contains(t, lines[2], "delivered")
}

func TestNewAPIClientRequiresCredentials(t *testing.T) {
	cfg := config.Default()
	_, err := newAPIClient(cfg, testutil.DiscardLogger(), false)
	testutil.ErrorContains(t, err, "api.client_id and api.client_secret")

	cfg.API.ClientID, cfg.API.ClientSecret = "id", "secret"
	_, err = newAPIClient(cfg, testutil.DiscardLogger(), true)
	testutil.ErrorContains(t, err, "no access token configured")

	c, err := newAPIClient(cfg, testutil.DiscardLogger(), false)
	testutil.NoError(t, err)
	testutil.False(t, c.Authenticated())
}

func TestLoadCertificate(t *testing.T) {
	cert, err := loadCertificate(config.APIConfig{})
	testutil.NoError(t, err)
	testutil.Nil(t, cert)

	dir := t.TempDir()
	_, err = loadCertificate(config.APIConfig{
		CertFile: filepath.Join(dir, "missing.pem"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	})
	testutil.ErrorContains(t, err, "loading partner certificate")

	p12 := testutil.WriteFile(t, filepath.Join(dir, "partner.p12"), "not a bundle")
	_, err = loadCertificate(config.APIConfig{CertFile: p12})
	testutil.ErrorContains(t, err, "decoding")
}

func TestParseDestination(t *testing.T) {
	cfg := config.Default()
	to, err := parseDestination(cfg, "+34 600 000 000")
	testutil.NoError(t, err)
	testutil.Equal(t, "34600000000", to)

	to, err = parseDestination(cfg, "5c2b9a7e")
	testutil.NoError(t, err)
	testutil.Equal(t, "5c2b9a7e", to)

	_, err = parseDestination(cfg, "+34 abc")
	testutil.ErrorContains(t, err, "invalid destination")

	cfg.API.AllowedCountries = []string{"ES"}
	_, err = parseDestination(cfg, "+1 650 253 0000")
	testutil.ErrorContains(t, err, "outside the allowed countries")

	to, err = parseDestination(cfg, "5c2b9a7e")
	testutil.NoError(t, err)
	testutil.Equal(t, "5c2b9a7e", to)
}

func TestCallbackURL(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "send"}
		addSendFlags(cmd)
		testutil.NoError(t, cmd.ParseFlags(args))
		return cmd
	}
	cfg := config.Default()
	testutil.Equal(t, "", callbackURL(newCmd(), cfg))

	cfg.Server.PublicURL = "https://hooks.example.com/"
	testutil.Equal(t, "https://hooks.example.com/delivery_status", callbackURL(newCmd(), cfg))
	testutil.Equal(t, "https://other.example.com/cb", callbackURL(newCmd("--callback-url", "https://other.example.com/cb"), cfg))
	testutil.Equal(t, "", callbackURL(newCmd("--no-callback"), cfg))

	cfg.Server.PublicURL = ""
	cfg.Server.TLSDomain = "bluevia.example.com"
	testutil.Equal(t, "https://bluevia.example.com/delivery_status", callbackURL(newCmd(), cfg))
}

func TestWaitForFinal(t *testing.T) {
	t.Run("polls until final", func(t *testing.T) {
		var calls atomic.Int32
		fetch := func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error) {
			if calls.Add(1) < 3 {
				return &bluevia.DeliveryStatus{ID: id, Status: bluevia.StatusWaiting}, nil
			}
			return &bluevia.DeliveryStatus{ID: id, Status: bluevia.StatusDelivered}, nil
		}
		ds, err := waitForFinal(t.Context(), fetch, "1", time.Minute, time.Millisecond)
		testutil.NoError(t, err)
		testutil.Equal(t, bluevia.StatusDelivered, ds.Status)
		testutil.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors stop polling", func(t *testing.T) {
		var calls atomic.Int32
		fetch := func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error) {
			calls.Add(1)
			return nil, &bluevia.APIError{StatusCode: http.StatusNotFound, Reason: "Not Found"}
		}
		_, err := waitForFinal(t.Context(), fetch, "1", time.Minute, time.Millisecond)
		var apiErr *bluevia.APIError
		testutil.True(t, errors.As(err, &apiErr))
		testutil.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		fetch := func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error) {
			if calls.Add(1) == 1 {
				return nil, &bluevia.APIError{StatusCode: http.StatusBadGateway, Reason: "Bad Gateway"}
			}
			return &bluevia.DeliveryStatus{ID: id, Status: bluevia.StatusExpired}, nil
		}
		ds, err := waitForFinal(t.Context(), fetch, "1", time.Minute, time.Millisecond)
		testutil.NoError(t, err)
		testutil.Equal(t, bluevia.StatusExpired, ds.Status)
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		fetch := func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error) {
			return &bluevia.DeliveryStatus{ID: id, Status: bluevia.StatusSent}, nil
		}
		ds, err := waitForFinal(t.Context(), fetch, "1", 30*time.Millisecond, time.Millisecond)
		testutil.ErrorContains(t, err, `still "sent"`)
		testutil.Equal(t, bluevia.StatusSent, ds.Status)
	})
}

func TestSMSSendRecordsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sms/v2/smsoutbound" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["to"] != "tel:+34600000000" || body["message"] != "Hello" {
			http.Error(w, "unexpected body", http.StatusBadRequest)
			return
		}
		if body["callbackUrl"] != "https://hooks.example.com/delivery_status" {
			http.Error(w, "unexpected callback", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"97286"}`))
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "\n[server]\npublic_url = \"https://hooks.example.com\"\n")

	out, err := run(t, "sms", "send", "+34600000000", "Hello", "--config", cfgPath)
	testutil.NoError(t, err)
	testutil.Equal(t, "97286\n", out)

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, store.KindSMS, msgs[0].Kind)
	testutil.Equal(t, store.Outbound, msgs[0].Direction)
	testutil.Equal(t, "34600000000", msgs[0].Address)
	testutil.Equal(t, "Hello", msgs[0].Body)
}

func TestSMSSendRejectsDisallowedCountry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")
	_, err := run(t, "config", "set", "api.allowed_countries", "ES", "--config", cfgPath)
	testutil.NoError(t, err)

	_, err = run(t, "sms", "send", "+16502530000", "Hi", "--config", cfgPath)
	testutil.ErrorContains(t, err, "outside the allowed countries")
	testutil.Equal(t, int32(0), hits.Load())
}

func TestSMSStatusUpdatesStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/sms/v2/smsoutbound":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"s1"}`))
		case "/sms/v2/smsoutbound/s1/deliverystatus":
			w.Write([]byte(`{"address":"tel:+34600000000","status":"delivered"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")

	_, err := run(t, "sms", "send", "34600000000", "Hi", "--config", cfgPath)
	testutil.NoError(t, err)

	out, err := run(t, "sms", "status", "s1", "--config", cfgPath, "--json")
	testutil.NoError(t, err)
	var ds bluevia.DeliveryStatus
	testutil.NoError(t, json.Unmarshal([]byte(out), &ds))
	testutil.Equal(t, bluevia.DeliveryStatus{ID: "s1", Address: "34600000000", Status: "delivered"}, ds)

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, "delivered", msgs[0].Status)
}

func TestSMSInboxRecordsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"in1","from":"alias:5c2b9a7e","to":"tel:+34217040","message":"KEYWORD hi","timestamp":"2013-05-21T10:04:33.000000+0000"}]`))
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")

	out, err := run(t, "sms", "inbox", "--config", cfgPath, "--output", "csv")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "ID,From,To,Received,Message")
	testutil.Contains(t, out, "in1,5c2b9a7e,34217040")

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, store.Inbound, msgs[0].Direction)
	testutil.True(t, msgs[0].Obfuscated)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	testutil.NoError(t, png.Encode(&buf, img))
	testutil.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestMMSSendScalesImages(t *testing.T) {
	type part struct {
		contentType string
		data        []byte
	}
	parts := make(chan []part, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var got []part
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(p)
			got = append(got, part{p.Header.Get("Content-Type"), data})
		}
		parts <- got
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")
	photo := filepath.Join(dir, "photo.png")
	writePNG(t, photo, 200, 100)

	out, err := run(t, "mms", "send", "34600000000", "--config", cfgPath,
		"--subject", "Photo", "--text", "Look!", "--attach", photo, "--max-width", "40")
	testutil.NoError(t, err)
	testutil.Equal(t, "m1\n", out)

	got := <-parts
	testutil.SliceLen(t, got, 3)
	testutil.True(t, strings.HasPrefix(got[1].contentType, "text/plain"))
	testutil.Equal(t, "Look!", string(got[1].data))
	testutil.Equal(t, "image/png", got[2].contentType)
	cfgImg, err := png.DecodeConfig(bytes.NewReader(got[2].data))
	testutil.NoError(t, err)
	testutil.Equal(t, 40, cfgImg.Width)
	testutil.Equal(t, 20, cfgImg.Height)

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, 2, msgs[0].Attachments)
	testutil.Equal(t, "Photo", msgs[0].Body)
}

func TestMMSSendNeedsContent(t *testing.T) {
	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, "http://127.0.0.1:1", "")
	_, err := run(t, "mms", "send", "34600000000", "--config", cfgPath, "--subject", "Empty")
	testutil.ErrorContains(t, err, "nothing to send")

	_, err = run(t, "mms", "send", "34600000000", "--config", cfgPath, "--attach", filepath.Join(dir, "notes.unknownext"))
	testutil.ErrorContains(t, err, "content type")
}

func TestMMSGetSavesAttachments(t *testing.T) {
	body, err := mmsbody.Build(map[string]any{
		"id":        "a/1",
		"from":      "tel:+34600000000",
		"to":        "tel:+34217040",
		"subject":   "Holidays",
		"timestamp": "2013-05-21T10:04:33.000001+0000",
	}, []mmsbody.Attachment{mmsbody.Text("Look!")})
	testutil.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", body.ContentType())
		w.Write(body.Bytes())
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")
	saveDir := filepath.Join(dir, "saved")

	out, err := run(t, "mms", "get", "a/1", "--config", cfgPath, "--save-dir", saveDir)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "Holidays")

	data, err := os.ReadFile(filepath.Join(saveDir, "a_1-1.txt"))
	testutil.NoError(t, err)
	testutil.Equal(t, "Look!", string(data))

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, store.KindMMS, msgs[0].Kind)
	testutil.Equal(t, 1, msgs[0].Attachments)
}

func TestInboxPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/sms/v2/smsinbound":
			w.Write([]byte(`[{"id":"in1","from":"tel:+34600000000","to":"tel:+34217040","message":"hi","timestamp":"2013-05-21T10:04:33.000000+0000"}]`))
		case "/mms/v2/mmsinbound":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, srv.URL, "")

	out, err := run(t, "inbox", "poll", "--config", cfgPath)
	testutil.NoError(t, err)
	testutil.Equal(t, "1 sms, 0 mms\n", out)

	msgs := listMessages(t, cfgPath)
	testutil.SliceLen(t, msgs, 1)
	testutil.Equal(t, "in1", msgs[0].ID)
}

func TestMessagesListValidatesFilters(t *testing.T) {
	inTempDir(t)
	_, err := run(t, "messages", "list", "--kind", "fax")
	testutil.ErrorContains(t, err, "--kind must be sms or mms")
	_, err = run(t, "messages", "list", "--direction", "sideways")
	testutil.ErrorContains(t, err, "--direction must be outbound or inbound")
}

func TestMessagesStoreDisabled(t *testing.T) {
	inTempDir(t)
	t.Setenv("BLUEVIA_STORE_ENABLED", "false")
	_, err := run(t, "messages", "list")
	testutil.ErrorContains(t, err, "message store is disabled")
}

func TestAuthURL(t *testing.T) {
	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, "https://api.example.com", "")

	out, err := run(t, "auth", "url", "--config", cfgPath, "--json",
		"--redirect-uri", "https://app.example.com/cb", "--scope", "sms.send")
	testutil.NoError(t, err)
	var got map[string]string
	testutil.NoError(t, json.Unmarshal([]byte(out), &got))
	testutil.Contains(t, got["url"], "client_id=app-id")
	testutil.Contains(t, got["url"], "scope=sms.send")
	testutil.Contains(t, got["url"], "state="+got["state"])
}

func TestAuthLoginReportsDenial(t *testing.T) {
	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, "https://api.example.com", "")
	_, err := run(t, "auth", "login", "--config", cfgPath,
		"--response", "https://app.example.com/cb?error=access_denied")
	testutil.ErrorContains(t, err, "access_denied")
}

func TestAuthToken(t *testing.T) {
	dir := inTempDir(t)
	cfgPath := writeConfig(t, dir, "https://api.example.com", "")

	out, err := run(t, "auth", "token", "--config", cfgPath)
	testutil.NoError(t, err)
	testutil.Equal(t, "tok-******6789\n", out)

	out, err = run(t, "auth", "token", "--config", cfgPath, "--reveal")
	testutil.NoError(t, err)
	testutil.Equal(t, "tok-0123456789\n", out)
}

func TestBuildSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Forward.Webhook.Enabled = true
	cfg.Forward.Webhook.URL = "https://hooks.example.com/bluevia"
	cfg.Forward.Webhook.Secret = "s3cret"

	sinks, err := buildSinks(t.Context(), cfg, nil, testutil.DiscardLogger())
	testutil.NoError(t, err)
	testutil.SliceLen(t, sinks, 2)
	testutil.Equal(t, "log", sinks[0].Name())
	testutil.Equal(t, "webhook", sinks[1].Name())

	st, err := store.Open(t.Context(), store.DriverSQLite, filepath.Join(t.TempDir(), "m.db"))
	testutil.NoError(t, err)
	defer st.Close()
	sinks, err = buildSinks(t.Context(), config.Default(), st, testutil.DiscardLogger())
	testutil.NoError(t, err)
	testutil.SliceLen(t, sinks, 2)
	testutil.Equal(t, "store", sinks[1].Name())
}

func TestAttachmentExt(t *testing.T) {
	testutil.Equal(t, ".txt", attachmentExt("text/plain; charset=utf-8"))
	testutil.Equal(t, ".jpg", attachmentExt("image/jpeg"))
	testutil.Equal(t, ".png", attachmentExt("image/png"))
	testutil.Equal(t, ".bin", attachmentExt("application/x-unknown-thing"))
	testutil.Equal(t, ".bin", attachmentExt(""))
}

func TestSafeName(t *testing.T) {
	testutil.Equal(t, "a_1", safeName("a/1"))
	testutil.Equal(t, "msg-9.x_y", safeName("msg-9.x_y"))
	testutil.Equal(t, "__", safeName(`\:`))
}

func TestPortError(t *testing.T) {
	err := portError(8443, errors.New("listen: listen tcp :8443: bind: address already in use"))
	testutil.ErrorContains(t, err, "port 8443 is already in use")
	testutil.ErrorContains(t, err, "--port 8444")

	other := errors.New("boom")
	testutil.ErrorIs(t, portError(8443, other), other)
}

func TestBannerVersion(t *testing.T) {
	testutil.Equal(t, "0.1.0", bannerVersion("v0.1.0"))
	testutil.Equal(t, "dev", bannerVersion("dev"))
}
